package main

import (
	"errors"
	"strings"
	"testing"
)

type call struct {
	title, body, urgency string
}

func recordNotifier(calls *[]call, err error) notifier {
	return func(title, body, urgency string) error {
		*calls = append(*calls, call{title, body, urgency})
		return err
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		notifyErr error
		wantOK    bool
		wantTitle string
		wantBody  string
		wantErr   string
	}{
		{
			name:      "fall",
			input:     `{"event":"fall","device":"wrist-01","probability":0.92,"params":{"peak_magnitude":31.46}}`,
			wantOK:    true,
			wantTitle: "Fall detected",
			wantBody:  "wrist-01: fall probability 92%, peak 31.5 m/s²",
		},
		{
			name:      "custom title",
			input:     `{"event":"fall","probability":0.5,"config":{"title":"Grandpa fell","urgency":"normal"}}`,
			wantOK:    true,
			wantTitle: "Grandpa fell",
			wantBody:  "fall probability 50%",
		},
		{
			name:      "test event",
			input:     `{"event":"test","probability":0}`,
			wantOK:    true,
			wantTitle: "Fallguard test",
			wantBody:  "fall probability 0%",
		},
		{
			name:    "bad json",
			input:   `not json`,
			wantErr: "failed to decode request",
		},
		{
			name:      "notifier fails",
			input:     `{"event":"fall","probability":0.9}`,
			notifyErr: errors.New("no display"),
			wantErr:   "notify failed: no display",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []call
			resp := handle(strings.NewReader(tt.input), recordNotifier(&calls, tt.notifyErr))

			if resp.Success != tt.wantOK {
				t.Fatalf("Success = %v, want %v (error %q)", resp.Success, tt.wantOK, resp.Error)
			}
			if tt.wantErr != "" {
				if !strings.Contains(resp.Error, tt.wantErr) {
					t.Errorf("Error = %q, want it to contain %q", resp.Error, tt.wantErr)
				}
				return
			}
			if len(calls) != 1 {
				t.Fatalf("expected 1 notification, got %d", len(calls))
			}
			if calls[0].title != tt.wantTitle {
				t.Errorf("title = %q, want %q", calls[0].title, tt.wantTitle)
			}
			if calls[0].body != tt.wantBody {
				t.Errorf("body = %q, want %q", calls[0].body, tt.wantBody)
			}
		})
	}
}
