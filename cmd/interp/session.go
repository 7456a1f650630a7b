package main

import (
	"fmt"
	"regexp"

	"github.com/chalkboard/interp/internal/artifact"
	"github.com/chalkboard/interp/internal/demux"
	"github.com/chalkboard/interp/internal/environment"
	"github.com/chalkboard/interp/internal/session"
	"github.com/chalkboard/interp/internal/wrapper"
)

func (a *app) newWrapper() *wrapper.Wrapper {
	return wrapper.New(wrapper.Options{
		Marker:   a.cfg.Marker,
		TempDir:  a.cfg.TempDir,
		Keywords: a.cfg.PlotKeywords,
	})
}

func (a *app) launchBuilder() session.LaunchBuilder {
	if a.builder != nil {
		return a.builder
	}
	return environment.New(a.cfg.LaunchSettings())
}

func (a *app) newManager() (*session.Manager, error) {
	// A nil pattern list selects the demultiplexer's default prompts.
	var prompts []*regexp.Regexp
	if len(a.cfg.PromptPatterns) > 0 {
		compiled, err := demux.CompilePrompts(a.cfg.PromptPatterns)
		if err != nil {
			return nil, err
		}
		if len(compiled) > 0 {
			prompts = compiled
		}
	}

	fetcher := artifact.NewCachedFetcher(artifact.NewFileFetcher(a.cfg.ArtifactMaxBytes), a.cfg.ArtifactCacheTTL)
	manager, err := session.New(session.Options{
		Builder:         a.launchBuilder(),
		Spawner:         a.spawner,
		Wrapper:         a.newWrapper(),
		Fetcher:         fetcher,
		Marker:          a.cfg.Marker,
		PromptPatterns:  prompts,
		EchoPrompt:      a.cfg.EchoPrompt,
		HistoryLimit:    a.cfg.HistoryLimit,
		TranscriptLimit: a.cfg.TranscriptLimit,
		RestartDelay:    a.cfg.RestartDelay,
		StopGrace:       a.cfg.StopGrace,
		KillWait:        a.cfg.KillWait,
		StartupProbe:    a.cfg.StartupProbe,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return manager, nil
}
