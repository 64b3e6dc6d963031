package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Default level
	Logger.SetLevel(logrus.InfoLevel)

	// Override from env, e.g., LOG_LEVEL=debug
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if parsedLevel, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
			Logger.SetLevel(parsedLevel)
		}
	}
}

// WithComponent adds a component field to the logger
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// SetLevel applies a textual level; invalid values leave the current level untouched.
func SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	Logger.SetLevel(parsed)
	return nil
}

// TagFrontend stamps every subsequent log line with the front-end the worker serves.
// Calling it again replaces the previous tag.
func TagFrontend(frontend string) {
	hooks := make(logrus.LevelHooks)
	for level, hs := range Logger.Hooks {
		for _, h := range hs {
			if _, ok := h.(*frontendHook); ok {
				continue
			}
			hooks[level] = append(hooks[level], h)
		}
	}
	Logger.ReplaceHooks(hooks)
	if frontend == "" {
		return
	}
	Logger.AddHook(&frontendHook{frontend: frontend})
}

type frontendHook struct {
	frontend string
}

func (h *frontendHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *frontendHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["frontend"]; !ok {
		entry.Data["frontend"] = h.frontend
	}
	return nil
}
