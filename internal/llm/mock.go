package llm

import "context"

// MockClient permite tests sin llamar a un LLM real. Las respuestas se
// consumen en orden; la última se repite si hay más llamadas que respuestas.
type MockClient struct {
	Responses []string
	Err       error
	Calls     []Request
	next      int
}

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", ErrEmptyCompletion
	}
	i := m.next
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.next++
	return m.Responses[i], nil
}

// CallCount devuelve cuántas veces se invocó el cliente.
func (m *MockClient) CallCount() int {
	return len(m.Calls)
}
