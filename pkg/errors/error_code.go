package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidType          ErrorCode = 102
	ErrCodeInvalidPeriod        ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104
	ErrCodeInsufficientData     ErrorCode = 105
	ErrCodeMissingColumn        ErrorCode = 106
	ErrCodeInvalidOrder         ErrorCode = 107

	// Data-quality errors (200-299)
	ErrCodeDataNotFound       ErrorCode = 200
	ErrCodeQueryFailed        ErrorCode = 201
	ErrCodeInvalidPrice       ErrorCode = 202
	ErrCodeNonMonotonicSeries ErrorCode = 203
	ErrCodeInvalidIndicator   ErrorCode = 204

	// Strategy errors (300-399)
	ErrCodeStrategyConfigError ErrorCode = 300
	ErrCodeUnsupportedStrategy ErrorCode = 301

	// Backtest errors (400-499)
	ErrCodeBacktestConfigError ErrorCode = 400
	ErrCodeBacktestDataError   ErrorCode = 401

	// Optimization errors (500-599)
	ErrCodeTrialFailed         ErrorCode = 500
	ErrCodeSearchSpaceError    ErrorCode = 501
	ErrCodeResultsStoreFailure ErrorCode = 502

	// Market data errors (600-699)
	ErrCodeMarketDataFetchFailed ErrorCode = 600
	ErrCodeMarketDataWriteFailed ErrorCode = 601
	ErrCodeMarketDataParseFailed ErrorCode = 602
	ErrCodeInvalidTimespan       ErrorCode = 603
	ErrCodeInvalidProvider       ErrorCode = 604
)
