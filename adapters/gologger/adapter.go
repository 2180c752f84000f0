package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenapi/core"
)

const DefaultLoggerName = "tokenapi"

// Resolve uses precedence provider > logger > nop. An empty name resolves
// the default tokenapi logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ServiceOptions resolves the pair once and hands both to core.NewService.
func ServiceOptions(name string, provider glog.LoggerProvider, logger glog.Logger) []core.Option {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return []core.Option{
		core.WithLoggerProvider(resolvedProvider),
		core.WithLogger(resolvedLogger),
	}
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job bridges for
// workers that run deferred dispatches.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
