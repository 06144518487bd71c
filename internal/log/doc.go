// Package log builds the per-crawl structured logger on top of log/slog.
//
// Every crawl invocation constructs its own *slog.Logger with New and hands it
// to the engine, fetcher, robots checker and authenticator. Nothing in this
// package keeps global state.
//
// # Redaction
//
// Crawls frequently run with credentials, so records pass through a
// SecureHandler before reaching the text handler. It masks:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - attributes whose key names a secret (password, token, session, ...)
//   - values that look like bearer/basic credentials or JWTs
//
// # Usage
//
//	logger, closer, err := log.New(log.Options{
//	    Level:   slog.LevelInfo,
//	    Console: os.Stderr,
//	    File:    "logs/crawl.log",
//	})
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//
//	logger.Info("login submitted", "password", pw) // password=***REDACTED***
package log
