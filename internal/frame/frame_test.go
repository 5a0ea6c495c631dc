package frame

import "testing"

func TestView_Validate(t *testing.T) {
	tests := []struct {
		name    string
		view    View
		wantErr bool
	}{
		{"exact", View{Width: 2, Height: 2, Data: make([]byte, 12)}, false},
		{"padded", View{Width: 2, Height: 2, Data: make([]byte, 16)}, false},
		{"short", View{Width: 2, Height: 2, Data: make([]byte, 11)}, true},
		{"zero width", View{Width: 0, Height: 2, Data: make([]byte, 12)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.view.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestView_CopyDetaches(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6}
	v := View{Width: 2, Height: 1, Data: buf}

	f := v.Copy()
	buf[0] = 99

	if f.Data[0] != 1 {
		t.Errorf("copy aliases the mapped buffer")
	}
	if f.Width != 2 || f.Height != 1 || f.Format != RGB {
		t.Errorf("unexpected frame metadata: %+v", f)
	}
}
