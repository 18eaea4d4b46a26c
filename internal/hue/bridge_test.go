package hue

import "testing"

func TestMirekKelvinConversion(t *testing.T) {
	tests := []struct {
		mirek  uint16
		kelvin int
	}{
		{153, 6535},
		{250, 4000},
		{500, 2000},
	}
	for _, tt := range tests {
		if got := MirekToKelvin(tt.mirek); got != tt.kelvin {
			t.Errorf("MirekToKelvin(%d) = %d, want %d", tt.mirek, got, tt.kelvin)
		}
	}

	if got := MirekToKelvin(0); got != 0 {
		t.Errorf("MirekToKelvin(0) = %d, want 0", got)
	}
}

func TestKelvinToMirekClamps(t *testing.T) {
	if got := KelvinToMirek(4000); got != 250 {
		t.Errorf("KelvinToMirek(4000) = %d, want 250", got)
	}
	// Below the warm end of the scale.
	if got := KelvinToMirek(1000); got != 500 {
		t.Errorf("KelvinToMirek(1000) = %d, want 500", got)
	}
	// Beyond the cold end of the scale.
	if got := KelvinToMirek(10000); got != 153 {
		t.Errorf("KelvinToMirek(10000) = %d, want 153", got)
	}
	if got := KelvinToMirek(0); got != 500 {
		t.Errorf("KelvinToMirek(0) = %d, want 500", got)
	}
}
