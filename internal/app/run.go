package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/pipeline"
	"github.com/vk/icupipe/internal/sink"
	"github.com/vk/icupipe/internal/unit"
)

// Run transforms the configured concepts for every configured source.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startHealthCheckServer()
	defer func() {
		err = errors.Join(err, a.closeHealthCheckServer(), a.pool.Close())
	}()

	strategy, err := graph.NewStrategy(a.config.Execution, a.config.WorkerCount)
	if err != nil {
		return err
	}
	writer, err := a.newWriter()
	if err != nil {
		return fmt.Errorf("failed to create %s sink: %w", a.config.Sink, err)
	}

	p, err := pipeline.New(pipeline.Options{
		Sources:   a.sources,
		Loader:    a.loader,
		Registry:  a.registry,
		Units:     unit.Default(),
		Connector: a.pool,
		Strategy:  strategy,
		Writer:    writer,
	})
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Starting transform...", "concepts", a.config.Concepts, "sources", sourceNames(a.sources), "sink", a.config.Sink, "execution", strategy.Name())
	run, err := p.Transform(ctx, a.config.Concepts, nil)
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "rows", run.Sink.Totals())
	return nil
}

func (a *App) newWriter() (sink.Writer, error) {
	switch a.config.Sink {
	case SinkJSONL:
		return sink.NewJSONL(a.config.OutputPath)
	case SinkMemory:
		a.memory = sink.NewMemory()
		return a.memory, nil
	case SinkSocketIO:
		return sink.NewSocketIO(sink.SocketIOConfig{URL: a.config.SocketURL})
	}
	return sink.NewCSV(a.config.OutputPath)
}
