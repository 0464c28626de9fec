package versions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"redink-api/internal/client/api"
)

func TestAppendSelectsNewest(t *testing.T) {
	r := New(api.FilenameOf)

	v := r.Append(0, api.ImageURL("task_1", "0.png"), SourceGenerate)
	require.Equal(t, "0.png", v.Filename)

	// 局部重绘返回 0_v1.png，版本表中恰好是原图与新图
	r.Append(0, api.ImageURL("task_1", "0_v1.png"), SourceInpaint)
	list := r.List(0)
	require.Len(t, list, 2)
	require.Equal(t, "0.png", list[0].Filename)
	require.Equal(t, "0_v1.png", list[1].Filename)

	sel, ok := r.Selected(0)
	require.True(t, ok)
	require.Equal(t, "0_v1.png", sel.Filename)
	require.Equal(t, SourceInpaint, sel.Source)
}

func TestDuplicateAppendReselects(t *testing.T) {
	r := New(api.FilenameOf)
	r.Append(1, "/api/images/t/1.png", SourceGenerate)
	r.Append(1, "/api/images/t/1_v2.png", SourceRegenerate)
	r.Append(1, "/api/images/t/1.png", SourceRegenerate)

	require.Len(t, r.List(1), 2)
	sel, _ := r.Selected(1)
	require.Equal(t, "1.png", sel.Filename)
	latest, _ := r.Latest(1)
	require.Equal(t, "1_v2.png", latest.Filename)
}

func TestSelectIsBounded(t *testing.T) {
	r := New(nil)
	r.Append(0, "0.png", SourceGenerate)
	r.Append(0, "0_v2.png", SourceCanvas)

	v, err := r.Select(0, 0)
	require.NoError(t, err)
	require.Equal(t, "0.png", v.URL)

	_, err = r.Select(0, 5)
	require.Error(t, err)
	_, err = r.Select(3, 0)
	require.Error(t, err)

	_, ok := r.Selected(3)
	require.False(t, ok)
}

func TestLogoToggle(t *testing.T) {
	r := New(nil)
	r.Append(2, "2.png", SourceGenerate)
	r.Append(2, "2_v2.png", SourceRegenerate)
	_, err := r.Select(2, 0)
	require.NoError(t, err)

	r.LogoApply(2, "2_v3.png")
	sel, _ := r.Selected(2)
	require.Equal(t, SourceLogo, sel.Source)

	v, ok := r.LogoRevert(2)
	require.True(t, ok)
	require.Equal(t, "2.png", v.URL)
	require.Len(t, r.List(2), 3)

	_, ok = r.LogoRevert(2)
	require.False(t, ok)
}

func TestVersionsNeverShrink(t *testing.T) {
	r := New(nil)
	ops := []func(){
		func() { r.Append(0, "0.png", SourceGenerate) },
		func() { r.Append(0, "0_v2.png", SourceRegenerate) },
		func() { _, _ = r.Select(0, 0) },
		func() { r.LogoApply(0, "0_v3.png") },
		func() { _, _ = r.LogoRevert(0) },
		func() { r.Append(0, "0_v2.png", SourceCanvas) },
		func() { r.Append(0, "0_v4.png", SourceInpaint) },
	}
	last := 0
	for _, op := range ops {
		op()
		n := len(r.List(0))
		require.GreaterOrEqual(t, n, last)
		last = n

		sel, ok := r.Selected(0)
		require.True(t, ok)
		found := false
		for _, v := range r.List(0) {
			found = found || v.URL == sel.URL
		}
		require.True(t, found)
	}
	require.Equal(t, 4, last)
}
