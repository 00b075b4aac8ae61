package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/livetemplate/sandbox/internal/demo"
	"github.com/livetemplate/sandbox/internal/store"
)

// Inbound action payloads
type (
	loadDemoData struct {
		Name string `json:"name"`
	}
	boxData struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Transformer string `json:"transformer"`
	}
	boxListData struct {
		Boxes []string `json:"boxes"`
	}
	iframeStatusData struct {
		Status string `json:"status"`
	}
	transformData struct {
		Transforming bool `json:"transforming"`
	}
	logData struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Source  string `json:"source"`
	}
)

type actionFunc func(s *Server, data json.RawMessage) error

// actions maps client action names to store operations
var actions = map[string]actionFunc{
	"loadDemo": func(s *Server, data json.RawMessage) error {
		var d loadDemoData
		if err := decodeData(data, &d); err != nil {
			return err
		}
		if d.Name == "" {
			return errors.New("name is required")
		}
		s.store.LoadDemo(demo.Named(d.Name))
		return nil
	},
	"updateCode": func(s *Server, data json.RawMessage) error {
		var d boxData
		t, err := decodeBox(data, &d)
		if err != nil {
			return err
		}
		s.store.UpdateCode(t, d.Code)
		return nil
	},
	"updateTransformer": func(s *Server, data json.RawMessage) error {
		var d boxData
		t, err := decodeBox(data, &d)
		if err != nil {
			return err
		}
		s.store.UpdateTransformer(t, d.Transformer)
		return nil
	},
	"toggleBoxFold": func(s *Server, data json.RawMessage) error {
		var d boxData
		t, err := decodeBox(data, &d)
		if err != nil {
			return err
		}
		s.store.ToggleBoxFold(t)
		return nil
	},
	"updateFoldBoxes": func(s *Server, data json.RawMessage) error {
		boxes, err := decodeBoxList(data)
		if err != nil {
			return err
		}
		s.store.UpdateFoldBoxes(boxes)
		return nil
	},
	"updateVisibleBoxes": func(s *Server, data json.RawMessage) error {
		boxes, err := decodeBoxList(data)
		if err != nil {
			return err
		}
		s.store.UpdateVisibleBoxes(boxes)
		return nil
	},
	"toggleAutoRun": func(s *Server, _ json.RawMessage) error {
		s.store.ToggleAutoRun()
		return nil
	},
	"setIframeStatus": func(s *Server, data json.RawMessage) error {
		var d iframeStatusData
		if err := decodeData(data, &d); err != nil {
			return err
		}
		s.store.SetIframeStatus(d.Status)
		return nil
	},
	"transform": func(s *Server, data json.RawMessage) error {
		var d transformData
		if err := decodeData(data, &d); err != nil {
			return err
		}
		s.store.Transform(d.Transforming)
		return nil
	},
	"addLog": func(s *Server, data json.RawMessage) error {
		var d logData
		if err := decodeData(data, &d); err != nil {
			return err
		}
		level, err := parseLevel(d.Level)
		if err != nil {
			return err
		}
		s.store.AddLog(store.LogEntry{Level: level, Message: d.Message, Source: d.Source})
		return nil
	},
	"clearLogs": func(s *Server, _ json.RawMessage) error {
		s.store.ClearLogs()
		return nil
	},
	"run": func(s *Server, _ json.RawMessage) error {
		s.store.Run()
		return nil
	},
}

// handleAction applies a named client action
func (s *Server) handleAction(name string, data json.RawMessage) error {
	fn, ok := actions[name]
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	return fn(s, data)
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}

func decodeBox(data json.RawMessage, d *boxData) (demo.BoxType, error) {
	if err := decodeData(data, d); err != nil {
		return "", err
	}
	return demo.ParseBoxType(d.Type)
}

func decodeBoxList(data json.RawMessage) ([]demo.BoxType, error) {
	var d boxListData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	boxes := make([]demo.BoxType, 0, len(d.Boxes))
	for _, b := range d.Boxes {
		t, err := demo.ParseBoxType(b)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, t)
	}
	return boxes, nil
}

func parseLevel(s string) (store.LogLevel, error) {
	switch level := store.LogLevel(s); level {
	case "":
		return store.LevelLog, nil
	case store.LevelLog, store.LevelInfo, store.LevelWarn, store.LevelError:
		return level, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}
