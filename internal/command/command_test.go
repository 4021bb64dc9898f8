package command

import "testing"

func TestIsCommand(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"#start", true},
		{"   #stop  ", true},
		{"#", true},
		{"hello", false},
		{"hello #start", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCommand(tt.line); got != tt.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestStrip(t *testing.T) {
	if got := Strip("  #setport 6000 "); got != "setport 6000" {
		t.Errorf("Strip() = %q, want %q", got, "setport 6000")
	}
	if got := Strip("plain"); got != "" {
		t.Errorf("Strip(non-command) = %q, want empty", got)
	}
}

func TestSetPortParameter(t *testing.T) {
	tests := []struct {
		name         string
		tokens       []string
		wantStatus   PortStatus
		wantSentinel int
	}{
		{"missing", []string{"setport"}, PortMissing, -1},
		{"malformed", []string{"setport", "abc"}, PortMalformed, -2},
		{"ok", []string{"setport", "6000"}, PortOK, 6000},
		{"extra tokens ignored", []string{"setport", "7000", "later"}, PortOK, 7000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetPortParameter(tt.tokens)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", got.Status, tt.wantStatus)
			}
			if got.Sentinel() != tt.wantSentinel {
				t.Errorf("Sentinel() = %d, want %d", got.Sentinel(), tt.wantSentinel)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		line     string
		wantOK   bool
		wantKind Kind
		wantName string
	}{
		{"#start", true, Start, "start"},
		{"#stop", true, Stop, "stop"},
		{"#close", true, Close, "close"},
		{"#getport", true, GetPort, "getport"},
		{"#setport 6000", true, SetPort, "setport"},
		{"#quit", true, Quit, "quit"},
		{"#bogus", true, Unknown, "bogus"},
		{"#START", true, Unknown, "START"},
		{"#", true, Unknown, ""},
		{"hello world", false, Unknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, ok := Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if cmd.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", cmd.Kind, tt.wantKind)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.wantName)
			}
		})
	}
}

func TestParse_SetPortArgument(t *testing.T) {
	cmd, _ := Parse("#setport 6000")
	if cmd.Port.Status != PortOK || cmd.Port.Value != 6000 {
		t.Errorf("Port = %+v, want OK 6000", cmd.Port)
	}

	cmd, _ = Parse("#setport")
	if cmd.Port.Status != PortMissing {
		t.Errorf("Port.Status = %v, want PortMissing", cmd.Port.Status)
	}

	cmd, _ = Parse("#setport six")
	if cmd.Port.Status != PortMalformed {
		t.Errorf("Port.Status = %v, want PortMalformed", cmd.Port.Status)
	}
}

func TestKindString(t *testing.T) {
	if Start.String() != "start" {
		t.Errorf("Start.String() = %q", Start.String())
	}
	if Unknown.String() != "unknown" {
		t.Errorf("Unknown.String() = %q", Unknown.String())
	}
}
