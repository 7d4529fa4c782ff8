package logfields

import "go.uber.org/zap"

func EventName(val string) zap.Field {
	return zap.String("github.event_name", val)
}

func EventAction(val string) zap.Field {
	return zap.String("github.event_action", val)
}

func Event(val string) zap.Field {
	return zap.String("event", val)
}
