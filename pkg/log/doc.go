// Package log is the structured logging port used across fnordcredit.
//
// Components depend on the Logger interface only. The CLI wires a zerolog
// backed implementation; tests and embedders that do not care about output
// use the no-op logger:
//
//	logger, err := log.NewZerolog(log.ZerologConfig{Level: "debug", Format: "console"})
//	if err != nil {
//	    return err
//	}
//	logger.Info("store loaded", log.String("path", "db/database.json"))
//
//	quiet := log.NewNoopLogger()
package log
