package jobqueue

import "encoding/json"

// Модели генеративного сервиса.
const (
	// ModelLoraTraining очередь обучения LoRA
	ModelLoraTraining = "fal-ai/flux-lora-fast-training"
	// ModelImageGeneration синхронная генерация изображения
	ModelImageGeneration = "fal-ai/flux-lora"
)

// Статусы задачи в очереди, как их отдаёт сервис.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// TrainingInput параметры задачи обучения LoRA.
type TrainingInput struct {
	ImagesDataURL string `json:"images_data_url"`
	TriggerWord   string `json:"trigger_word"`
}

// SubmitResponse ответ очереди на постановку задачи.
type SubmitResponse struct {
	RequestID string `json:"request_id"`
}

// JobStatus статус задачи в очереди вместе с журналом выполнения.
type JobStatus struct {
	Status        string     `json:"status"`
	QueuePosition int        `json:"queue_position,omitempty"`
	Logs          []LogEntry `json:"logs,omitempty"`
}

// LogEntry строка журнала выполнения задачи.
type LogEntry struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// JobResult сырой результат задачи; форма зависит от модели,
// поэтому тело передаётся вызывающему без преобразования.
type JobResult = json.RawMessage

// Lora ссылка на обученный адаптер и его вес при генерации.
type Lora struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

// GenerateInput параметры синхронной генерации изображения.
type GenerateInput struct {
	Prompt              string `json:"prompt"`
	Loras               []Lora `json:"loras,omitempty"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
	NumInferenceSteps   int    `json:"num_inference_steps,omitempty"`
}

// GenerateResult результат синхронной генерации.
type GenerateResult struct {
	Images []GeneratedImage `json:"images"`
}

// GeneratedImage сгенерированное изображение.
type GeneratedImage struct {
	URL string `json:"url"`
}
