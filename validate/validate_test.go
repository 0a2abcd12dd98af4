package validate

import "testing"

type createUserParams struct {
	Name string `validate:"required"`
	Age  int    `validate:"min=0,max=130"`
}

type selfCheckParams struct {
	called bool
}

func (p *selfCheckParams) Validate() error {
	return errAlwaysFails
}

var errAlwaysFails = errBasic("always fails")

type errBasic string

func (e errBasic) Error() string { return string(e) }

func TestValidateRequiredMissing(t *testing.T) {
	v := New()
	err := v.Validate("users.create", createUserParams{Age: 30})
	if err == nil {
		t.Fatalf("Validate() = nil, want error for missing required Name")
	}
}

func TestValidateRequiredPresent(t *testing.T) {
	v := New()
	err := v.Validate("users.create", createUserParams{Name: "Ana", Age: 30})
	if err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateMinMax(t *testing.T) {
	v := New()
	if err := v.Validate("users.create", createUserParams{Name: "Ana", Age: 200}); err == nil {
		t.Fatalf("Validate() = nil, want error for Age over max")
	}
	if err := v.Validate("users.create", createUserParams{Name: "Ana", Age: -1}); err == nil {
		t.Fatalf("Validate() = nil, want error for Age under min")
	}
}

func TestValidateSelfValidatingFastPath(t *testing.T) {
	v := New()
	err := v.Validate("x.y", &selfCheckParams{})
	if err == nil {
		t.Fatalf("Validate() = nil, want the self-validating type's own error")
	}
}

func TestValidateNilParamsAccepted(t *testing.T) {
	v := New()
	if err := v.Validate("x.y", nil); err != nil {
		t.Fatalf("Validate(nil) = %v, want nil", err)
	}
}

func TestValidateMapParamsAccepted(t *testing.T) {
	v := New()
	if err := v.Validate("x.y", map[string]any{"id": 1}); err != nil {
		t.Fatalf("Validate(map) = %v, want nil (untyped params are not reflected)", err)
	}
}

func TestValidateNestedStruct(t *testing.T) {
	type address struct {
		City string `validate:"required"`
	}
	type withAddress struct {
		Name string  `validate:"required"`
		Addr address
	}
	v := New()
	err := v.Validate("x.y", withAddress{Name: "Ana"})
	if err == nil {
		t.Fatalf("Validate() = nil, want error for missing nested Addr.City")
	}
}
