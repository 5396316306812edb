package validate

import "testing"

func TestPhone(t *testing.T) {
	valid := []string{
		"+41791234567",
		"+41211234567",
		"+38344123456",
		"+383441234567",
		"+38391234567",
	}
	for _, phone := range valid {
		if !Phone(phone) {
			t.Fatalf("expected %q to be valid", phone)
		}
	}

	invalid := []string{
		"",
		"0791234567",
		"+41091234567",  // swiss prefix cannot start with 0
		"+4179123456",   // too short
		"+417912345678", // too long
		"+3833123456",   // kosovo mobile prefix starts at 4
		"+383441234",    // too short
		"+41 79 123 45 67",
		"+1234567890",
		"+41791234567x",
	}
	for _, phone := range invalid {
		if Phone(phone) {
			t.Fatalf("expected %q to be invalid", phone)
		}
	}
}

func TestGroupedPhone(t *testing.T) {
	valid := []string{
		"+41791234567",
		"+41 79 123 45 67",
		"+38344123456",
		"+383 44 123 456",
	}
	for _, phone := range valid {
		if !GroupedPhone(phone) {
			t.Fatalf("expected %q to be valid", phone)
		}
	}

	invalid := []string{
		"",
		"+41 791 23 45 67",
		"+41-79-123-45-67",
		"0791234567",
	}
	for _, phone := range invalid {
		if GroupedPhone(phone) {
			t.Fatalf("expected %q to be invalid", phone)
		}
	}
}

func TestEmail(t *testing.T) {
	if !Email("user@example.com") {
		t.Fatalf("expected valid email")
	}
	for _, email := range []string{"", "user", "user@", "user@host", "a b@example.com"} {
		if Email(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestName(t *testing.T) {
	if !Name("Alma") {
		t.Fatalf("expected valid name")
	}
	if Name("   ") || Name("") {
		t.Fatalf("whitespace-only names should be invalid")
	}
}

func TestMessageRole(t *testing.T) {
	if !MessageRole("user") || !MessageRole("assistant") {
		t.Fatalf("expected user and assistant to be valid roles")
	}
	if MessageRole("system") || MessageRole("") {
		t.Fatalf("expected other roles to be invalid")
	}
}

func TestURL(t *testing.T) {
	if !URL("https://cdn.example.com/avatar.png") {
		t.Fatalf("expected valid url")
	}
	if URL("not a url") || URL("/relative/path") {
		t.Fatalf("expected invalid urls to be rejected")
	}
}
