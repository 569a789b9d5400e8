// Package logging wraps zap with context-aware methods for the pipeline.
//
// Every entry logged through a Logger carries the correlation data found in
// its context: the OpenTelemetry trace and span ids, the run id, the
// document being processed and the HTTP request id.
//
//	ctx = logging.WithRunID(ctx, "a1b2c3d4")
//	ctx = logging.WithDocument(ctx, "boleto-0001.pdf")
//	logger.Info(ctx, "document processed", zap.String("method", "extraction:llm"))
//
// Output goes to stderr so stdout stays free for command results and the
// MCP stdio transport. Values under sensitive keys (api_key, token, ...)
// and strings that look like credentials or CPF numbers are redacted by the
// encoder. Below error level, entries are sampled.
package logging
