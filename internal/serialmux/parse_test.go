package serialmux

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Reading
		wantOK bool
	}{
		{"well formed", "TOP:120.5,VAL:98.2,INT:70.4", Reading{TopPoint: 120.5, Interpolated: 98.2, Raw: 70}, true},
		{"rounds half up", "TOP:1,VAL:2,INT:44.5", Reading{TopPoint: 1, Interpolated: 2, Raw: 45}, true},
		{"trailing carriage return", "TOP:1,VAL:2,INT:3\r", Reading{TopPoint: 1, Interpolated: 2, Raw: 3}, true},
		{"spaces around fields", " TOP:1, VAL:2, INT:3 ", Reading{TopPoint: 1, Interpolated: 2, Raw: 3}, true},
		{"negative passes through", "TOP:0,VAL:0,INT:-4", Reading{Raw: -4}, true},
		{"missing field", "TOP:1,VAL:2", Reading{}, false},
		{"wrong order", "VAL:1,TOP:2,INT:3", Reading{}, false},
		{"non numeric", "TOP:1,VAL:2,INT:abc", Reading{}, false},
		{"nan", "TOP:1,VAL:2,INT:NaN", Reading{}, false},
		{"boot banner", "ESP32 touch ready", Reading{}, false},
		{"empty", "", Reading{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
