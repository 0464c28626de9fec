package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageTaskFailureClearsGenerated(t *testing.T) {
	task := NewImageTask("task_1", []Page{
		{Index: 0, Type: PageTypeCover, Content: "a"},
		{Index: 1, Type: PageTypeContent, Content: "b"},
	}, "", "", "")

	task.MarkDone(1, "1.png")
	task.MarkFailed(1, "upstream timeout")
	require.NotContains(t, task.Generated, 1)
	require.Equal(t, []int{1}, task.FailedIndices())
	require.Equal(t, []*string{nil, nil}, task.Aligned())

	task.MarkDone(1, "1.png")
	require.Empty(t, task.FailedIndices())
	require.Equal(t, "1.png", *task.Aligned()[1])
}
