package validator

import "testing"

type accessRequestPayload struct {
	PermissionCode string `json:"permission_code" validate:"required"`
	Reason         string `json:"reason" validate:"required,min=5"`
	DurationHours  int    `json:"duration_hours" validate:"gte=1,lte=168"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := accessRequestPayload{
		PermissionCode: "manage:smcr",
		Reason:         "quarterly certification run",
		DurationHours:  24,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	payload := accessRequestPayload{
		PermissionCode: "",
		Reason:         "no",
		DurationHours:  400,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	if fields["permission_code"] != "required" {
		t.Fatalf("expected permission_code required failure, got %v", fields)
	}
	if fields["duration_hours"] != "lte" {
		t.Fatalf("expected duration_hours lte failure, got %v", fields)
	}
}
