package db

import (
	"strings"
	"testing"

	"github.com/rafaelq/licita-radar/internal/models"
)

func TestBuildListWhereDefaults(t *testing.T) {
	where, args := buildListWhere(ListParams{})
	if !strings.Contains(where, "status_interno <> $1") {
		t.Errorf("default listing should hide the trash can, got: %s", where)
	}
	if len(args) != 1 || args[0] != string(models.StatusLixeira) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildListWhereExplicitStatusIncludesTrash(t *testing.T) {
	status := models.StatusLixeira
	where, args := buildListWhere(ListParams{StatusInterno: &status})
	if !strings.Contains(where, "status_interno = $1") {
		t.Errorf("explicit status filter missing: %s", where)
	}
	if strings.Contains(where, "status_interno <>") {
		t.Errorf("trash exclusion should not apply with explicit status: %s", where)
	}
	if len(args) != 1 || args[0] != string(models.StatusLixeira) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildListWhereArgOrdinals(t *testing.T) {
	vaiParticipar := true
	where, args := buildListWhere(ListParams{
		Query:         "uniformes",
		UF:            "sp",
		VaiParticipar: &vaiParticipar,
		MinScore:      70,
	})

	// Every placeholder up to len(args) must appear exactly once.
	for i := 1; i <= len(args); i++ {
		marker := "$" + string(rune('0'+i))
		if strings.Count(where, marker) == 0 {
			t.Errorf("placeholder %s missing from: %s", marker, where)
		}
	}
	if args[1] != "SP" {
		t.Errorf("UF should be uppercased, args = %v", args)
	}
	if len(args) != 5 {
		t.Errorf("got %d args, want 5 (query, uf, trash exclusion, vai_participar, min score)", len(args))
	}
}

func TestBuildPatchSet(t *testing.T) {
	viewed := true
	notas := "ligar para o órgão"
	empty := ""

	setClause, args, err := buildPatchSet(LicitacaoPatch{
		IsViewed:          &viewed,
		Anotacoes:         &notas,
		DataLimiteInterna: &empty,
		HasChecklist:      true,
		GestaoChecklist:   []models.ChecklistItem{{ID: "doc-1", Label: "Certidão negativa", Done: false}},
	})
	if err != nil {
		t.Fatalf("buildPatchSet: %v", err)
	}

	if !strings.Contains(setClause, "updated_at = NOW()") {
		t.Error("updated_at stamp missing")
	}
	if !strings.Contains(setClause, "data_limite_interna = NULL") {
		t.Error("empty deadline should clear the column")
	}
	if !strings.Contains(setClause, "is_viewed = $2") {
		t.Errorf("is_viewed placeholder wrong: %s", setClause)
	}
	// updated_at takes no arg, NULL takes no arg: viewed + checklist + notas.
	if len(args) != 3 {
		t.Errorf("got %d args, want 3: %v", len(args), args)
	}
}

func TestBuildPatchSetEmptyPatch(t *testing.T) {
	setClause, args, err := buildPatchSet(LicitacaoPatch{})
	if err != nil {
		t.Fatalf("buildPatchSet: %v", err)
	}
	if setClause != "updated_at = NOW()" {
		t.Errorf("setClause = %q", setClause)
	}
	if len(args) != 0 {
		t.Errorf("args = %v", args)
	}
}
