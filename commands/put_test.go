package commands

import "testing"

func TestCheckRelativePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "sushi-config.json", false},
		{"nested file", "input/anc.bpmn", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"traversal", "../other/file.json", true},
		{"nested traversal", "input/../../escape.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRelativePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkRelativePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}
