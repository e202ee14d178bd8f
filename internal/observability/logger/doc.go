// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: cada operación puede llevar un logger "scoped" con campos
//     adicionales (request_id, op, user_id) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.Named("refresher")
//	log.Info("token refreshed", logger.UserID(u.ID))
//
// Nunca loguear tokens. Los emails se enmascaran con Email().
package logger
