// Package generation 页面图片生成：SSE 批量生成、失败重试、单页重绘与编辑
package generation

import "fmt"

// SSE 事件类型
const (
	EventProgress    = "progress"
	EventComplete    = "complete"
	EventError       = "error"
	EventFinish      = "finish"
	EventRetryStart  = "retry_start"
	EventRetryFinish = "retry_finish"
)

// 生成阶段
const (
	PhaseCover      = "cover"
	PhaseContent    = "content"
	PhaseRetry      = "retry"
	PhaseRegenerate = "regenerate"
	PhaseEdit       = "edit"
	PhaseCanvas     = "canvas"
)

// Event 一条 SSE 事件
type Event struct {
	Type string
	Data any
}

// ProgressData progress 事件，batch_start 时没有 index
type ProgressData struct {
	Index   *int   `json:"index,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase"`
}

// CompleteData complete 事件
type CompleteData struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
	Phase    string `json:"phase,omitempty"`
}

// ErrorData error 事件
type ErrorData struct {
	Index     int    `json:"index"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Phase     string `json:"phase,omitempty"`
}

// FinishData finish 事件，Images 按页码对齐，失败页为 null
type FinishData struct {
	Success       bool      `json:"success"`
	TaskID        string    `json:"task_id"`
	Images        []*string `json:"images"`
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	FailedIndices []int     `json:"failed_indices"`
}

// RetryStartData retry_start 事件
type RetryStartData struct {
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// RetryFinishData retry_finish 事件
type RetryFinishData struct {
	Success   bool `json:"success"`
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
}

// ImageURL 图片访问路径
func ImageURL(taskID, filename string) string {
	return fmt.Sprintf("/api/images/%s/%s", taskID, filename)
}

func progressEvent(index *int, message string, current, total int, phase string) Event {
	status := "generating"
	if index == nil {
		status = "batch_start"
	}
	return Event{Type: EventProgress, Data: ProgressData{
		Index:   index,
		Status:  status,
		Message: message,
		Current: current,
		Total:   total,
		Phase:   phase,
	}}
}

func completeEvent(taskID string, index int, filename, phase string) Event {
	return Event{Type: EventComplete, Data: CompleteData{
		Index:    index,
		Status:   "done",
		ImageURL: ImageURL(taskID, filename),
		Phase:    phase,
	}}
}

func errorEvent(index int, message, phase string) Event {
	return Event{Type: EventError, Data: ErrorData{
		Index:     index,
		Status:    "error",
		Message:   message,
		Retryable: true,
		Phase:     phase,
	}}
}
