/*
Package log provides structured logging via zerolog: a process-wide
logger configured once with Init, and per-component child loggers handed
out with WithComponent.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("arbiter")
	logger.Debug().Uint32("zone_id", zoneID).Msg("granted resource")

The registry, the resource-set manager, the arbitration engine, the
engine, and the reconciler each get their own WithComponent logger (the
table store does not log) rather than logging through the bare
global Logger, so every line carries a "component" field identifying
its source without the caller having to add it by hand.

Console output (JSONOutput: false) is meant for local development;
JSONOutput: true is the production shape, one JSON object per line,
parseable by any log aggregator.
*/
package log
