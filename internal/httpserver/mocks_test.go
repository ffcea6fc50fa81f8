package httpserver

import (
	"github.com/stretchr/testify/mock"

	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/session"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) Status() session.Status {
	args := m.Called()
	return args.Get(0).(session.Status)
}

func (m *MockController) Start() error {
	return m.Called().Error(0)
}

func (m *MockController) SelectDifficulty(code int) (game.Difficulty, error) {
	args := m.Called(code)
	return args.Get(0).(game.Difficulty), args.Error(1)
}

func (m *MockController) Abort() error {
	return m.Called().Error(0)
}
