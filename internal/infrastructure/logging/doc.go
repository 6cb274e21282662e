// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON lines; development mode writes colored
// console output. Components take a *zap.Logger explicitly. Request-scoped
// trace IDs travel in the context and are attached with FromContext.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3000"))
//	logging.FromContext(ctx, logger.Logger).Warn("Handled RPC request", zap.Error(err))
package logging
