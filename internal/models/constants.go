package models

const (
	KindOneShotEmail = "one_shot_email"
	KindFolderWatch  = "folder_watch"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Row statuses are written into the spreadsheet status column as-is,
// so the values stay human readable.
const (
	RowStatusSkipped      = "Skipped"
	RowStatusNoContent    = "No content"
	RowStatusProcessing   = "Processing..."
	RowStatusSent         = "Sent"
	RowStatusRenderFailed = "Failed to generate"
)

// Image statuses shown in the watch status snapshot.
const (
	WatchImageDetected     = "Detected"
	WatchImageProcessed    = "Processed and Moved"
	WatchImageFailed       = "Failed"
	WatchImageBackupFailed = "Processing OK, Move Failed"
	WatchImageCheckError   = "Error during check"
)

const (
	// DefaultMisfireGraceMinutes окно допустимого опоздания для одноразовых задач
	DefaultMisfireGraceMinutes = 60

	// DefaultHandlerTimeoutMinutes лимит времени на один запуск обработчика
	DefaultHandlerTimeoutMinutes = 5

	// DefaultHistoryKeep количество завершённых задач, хранимых в истории
	DefaultHistoryKeep = 200

	// DefaultWatchIntervalMinutes интервал проверки папки по умолчанию
	DefaultWatchIntervalMinutes = 5

	// DefaultProcessFlagValue значение флага обработки по умолчанию
	DefaultProcessFlagValue = "yes"

	// WatchStatusTTL время жизни снапшота статуса мониторинга в Redis
	WatchStatusTTL = 24 * 60 * 60 // 24 часа в секундах
)
