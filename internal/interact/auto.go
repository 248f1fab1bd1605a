package interact

import "go.uber.org/zap"

// AutoHandler answers every question without a human: the default if
// one is set, otherwise the first option, otherwise cancelled. Used
// for fully unattended runs.
type AutoHandler struct {
	logger *zap.Logger
}

// NewAutoHandler builds an auto-answering handler. Decisions are
// logged so an operator can audit what the run chose for itself.
func NewAutoHandler(logger *zap.Logger) *AutoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoHandler{logger: logger}
}

func (h *AutoHandler) Ask(req Request) Response {
	answer := req.Default
	if answer == "" && len(req.Options) > 0 {
		answer = req.Options[0]
	}
	if answer == "" {
		h.logger.Warn("auto handler has no answer", zap.String("question", req.Question))
		return Response{Cancelled: true}
	}
	h.logger.Info("auto-answered question",
		zap.String("question", req.Question),
		zap.String("answer", answer))
	return classify(req, answer)
}

func (h *AutoHandler) Notify(level Level, message string) {
	switch level {
	case LevelError:
		h.logger.Error(message)
	case LevelWarning:
		h.logger.Warn(message)
	default:
		h.logger.Info(message)
	}
}

// CallbackHandler delegates to plain functions. Useful for embedding
// the agent behind another surface and in tests.
type CallbackHandler struct {
	AskFunc    func(req Request) Response
	NotifyFunc func(level Level, message string)
}

func (h *CallbackHandler) Ask(req Request) Response {
	if h.AskFunc == nil {
		return Response{Cancelled: true}
	}
	return h.AskFunc(req)
}

func (h *CallbackHandler) Notify(level Level, message string) {
	if h.NotifyFunc != nil {
		h.NotifyFunc(level, message)
	}
}
