package oauth2

import "fmt"

// statusErr wraps a non-2xx response from a provider endpoint. Its
// HTTPStatus method lets circuitbreaker.ClassifyError weigh it without
// needing to parse the message.
type statusErr struct {
	code int
	body []byte
}

func (e statusErr) Error() string {
	const maxBody = 200
	b := e.body
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return fmt.Sprintf("provider responded %d: %s", e.code, b)
}

func (e statusErr) HTTPStatus() int { return e.code }
