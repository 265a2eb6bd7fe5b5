package log

import "log/slog"

func StateID[T ~string](id T) slog.Attr {
	return slog.String("state_id", string(id))
}

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func LoopID[T ~string](id T) slog.Attr {
	return slog.String("loop_id", string(id))
}

func StepID[T ~string](id T) slog.Attr {
	return slog.String("step_id", string(id))
}

func MachineID[T ~string](id T) slog.Attr {
	return slog.String("machine_id", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func EventType[T ~string](et T) slog.Attr {
	return slog.String("event_type", string(et))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
