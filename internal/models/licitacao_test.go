package models

import "testing"

func TestParseStatusInterno(t *testing.T) {
	cases := []struct {
		raw     string
		want    StatusInterno
		wantErr bool
	}{
		{"", StatusNenhum, false},
		{"em_analise", StatusEmAnalise, false},
		{"preparando_proposta", StatusPreparandoProposta, false},
		{"enviada", StatusEnviada, false},
		{"resultado", StatusResultado, false},
		{"arquivada", StatusArquivada, false},
		{"lixeira", StatusLixeira, false},
		{"Lixeira", StatusNenhum, true},
		{"deleted", StatusNenhum, true},
	}
	for _, tc := range cases {
		got, err := ParseStatusInterno(tc.raw)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseStatusInterno(%q) err = %v, wantErr %v", tc.raw, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseStatusInterno(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestClearsParticipation(t *testing.T) {
	if !StatusLixeira.ClearsParticipation() {
		t.Error("lixeira must clear vai_participar")
	}
	for _, s := range []StatusInterno{StatusNenhum, StatusEmAnalise, StatusPreparandoProposta, StatusEnviada, StatusResultado, StatusArquivada} {
		if s.ClearsParticipation() {
			t.Errorf("%q must not clear vai_participar", s)
		}
	}
}
