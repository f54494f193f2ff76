package canon

import "testing"

func TestEncode_MapOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", map[string]any{"z": true, "y": nil}}}
	b := map[string]any{"a": []any{"x", map[string]any{"y": nil, "z": true}}, "b": 1}

	ea, err := String(a)
	if err != nil {
		t.Fatalf("String(a) failed: %v", err)
	}
	eb, err := String(b)
	if err != nil {
		t.Fatalf("String(b) failed: %v", err)
	}
	if ea != eb {
		t.Errorf("encodings differ: %s vs %s", ea, eb)
	}
	if want := `{"a":["x",{"y":null,"z":true}],"b":1}`; ea != want {
		t.Errorf("String = %s, want %s", ea, want)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil", nil, nil, true},
		{"int and float", 2, 2.0, true},
		{"string vs number", "2", 2, false},
		{"slices", []any{1, "a"}, []any{1, "a"}, true},
		{"slice order matters", []any{1, 2}, []any{2, 1}, false},
		{"unencodable", func() {}, func() {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
