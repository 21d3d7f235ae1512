package api

// Envelope is the response body of every public endpoint. Exactly one of
// Result and Error is meaningful, as IsSuccess says.
type Envelope[T any] struct {
	Result    T      `json:"result"`
	Error     string `json:"error"`
	IsSuccess bool   `json:"is_success"`
}

func Success[T any](result T) Envelope[T] {
	return Envelope[T]{Result: result, IsSuccess: true}
}

func Failure[T any](message string) Envelope[T] {
	return Envelope[T]{Error: message}
}
