package diff

import "testing"

func TestParsePatch_Empty(t *testing.T) {
	changes, err := ParsePatch("  \n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %d", len(changes))
	}
}

func TestParsePatch_MultiFile(t *testing.T) {
	patch := `diff --git a/payments/charge.go b/payments/charge.go
index 1234567..abcdefg 100644
--- a/payments/charge.go
+++ b/payments/charge.go
@@ -1,5 +1,6 @@
 package payments
 
 func Charge() {
+	capture()
-	authorize()
+	authorizeV2()
 }
diff --git a/docs/old.md b/docs/old.md
deleted file mode 100644
index 1111111..0000000
--- a/docs/old.md
+++ /dev/null
@@ -1,2 +0,0 @@
-# Old
-gone
diff --git a/api/openapi.yaml b/api/openapi.yaml
new file mode 100644
index 0000000..2222222
--- /dev/null
+++ b/api/openapi.yaml
@@ -0,0 +1,1 @@
+openapi: 3.0.0
`

	changes, err := ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch() error = %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 files, got %d", len(changes))
	}

	charge := changes[0]
	if charge.Path() != "payments/charge.go" || charge.Added != 2 || charge.Removed != 1 {
		t.Errorf("charge.go = %+v", charge)
	}
	if charge.Language != "go" || charge.Churn() != 3 {
		t.Errorf("charge.go language/churn = %s/%d", charge.Language, charge.Churn())
	}

	old := changes[1]
	if !old.Deleted || old.Path() != "docs/old.md" || old.Removed != 2 {
		t.Errorf("old.md = %+v", old)
	}

	spec := changes[2]
	if !spec.IsNew || spec.Path() != "api/openapi.yaml" || spec.Language != "yaml" {
		t.Errorf("openapi.yaml = %+v", spec)
	}
}

func TestParsePatch_Rename(t *testing.T) {
	patch := `diff --git a/a.go b/b.go
--- a/a.go
+++ b/b.go
@@ -1 +1 @@
-package a
+package b
`
	changes, err := ParsePatch(patch)
	if err != nil {
		t.Fatalf("ParsePatch() error = %v", err)
	}
	if len(changes) != 1 || !changes[0].Renamed || changes[0].Path() != "b.go" {
		t.Errorf("rename = %+v", changes)
	}
}

func TestIsSourceFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"payments/charge.go", true},
		{"vendor/x/y.go", false},
		{"go.sum", false},
		{"api/payments.pb.go", false},
		{"web/package-lock.json", false},
		{"README.md", true},
	}
	for _, tt := range tests {
		if got := IsSourceFile(tt.path); got != tt.want {
			t.Errorf("IsSourceFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
