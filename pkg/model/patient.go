package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/fhir"
)

// constraintDef pairs a label with the properties its uniqueness constraint
// covers.
type constraintDef struct {
	label string
	props []string
}

// commonConstraints cover the labels every model can produce: coding and
// identifier nodes plus the resource types that are frequent reference
// targets.
var commonConstraints = []constraintDef{
	{"Coding", codingIdentity},
	{"Identifier", identifierIdentity},
	{"IdentifierType", codingIdentity},
	{"Organization", []string{"fhir_id"}},
	{"Patient", []string{"fhir_id"}},
	{"Practitioner", []string{"fhir_id"}},
	{"RelatedPerson", []string{"fhir_id"}},
}

func createConstraints(ctx context.Context, cc ConstraintCreator, defs []constraintDef) (int, error) {
	added := 0
	for _, def := range defs {
		n, err := cc.CreateUnique(ctx, def.label, def.props...)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}

// PatientModel maps the FHIR resource 'Patient', based on the official HL7
// profile: https://hl7.org/fhir/patient.html
type PatientModel struct{}

// NewPatientModel creates the Patient model
func NewPatientModel() *PatientModel {
	return &PatientModel{}
}

func (m *PatientModel) ResourceType() string {
	return "Patient"
}

// Initialize creates constraints for every label the transformation can
// produce, including referenced resource types, coding nodes, and the
// PatientContact sub-entity.
func (m *PatientModel) Initialize(ctx context.Context, cc ConstraintCreator) (int, error) {
	added, err := createConstraints(ctx, cc, commonConstraints)
	if err != nil {
		return added, err
	}

	n, err := createConstraints(ctx, cc, []constraintDef{
		{"Language", codingIdentity},
		{"MaritalStatus", codingIdentity},
		{"PatientContact", []string{"temp_id"}},
		{"PatientContactRelationship", codingIdentity},
		{"PractitionerRole", []string{"fhir_id"}},
	})
	return added + n, err
}

func (m *PatientModel) Transform(ctx context.Context, res *fhir.Resource, tc *Context) error {
	data := res.Data
	label := "Patient"

	// a patient needs at least Patient.id
	id := res.ID()
	if id == "" {
		tc.Logger.Warn("Could not process Patient resource: missing Patient.id")
		return nil
	}

	props := map[string]any{"fhir_id": id}
	identifying := map[string]any{"fhir_id": id}

	ProcessIdentifiers(tc, data["identifier"], "IDENTIFIED_BY", label, identifying)

	AppendProperties(data["active"], "active", props)
	AppendHumanNames(data["name"], "name", props)
	AppendContactPoints(data["telecom"], "telecom", props)
	AppendProperties(data["gender"], "gender", props)
	AppendProperties(data["birthDate"], "birthdate", props)

	// only one of deceasedBoolean / deceasedDateTime is present
	AppendProperties(data["deceasedBoolean"], "deceased", props)
	AppendProperties(data["deceasedDateTime"], "deceased", props)

	AppendAddresses(data["address"], "address", props)

	ProcessCodeableConcepts(tc, data["maritalStatus"], "MaritalStatus", "marital_status", "HAS_MARITAL_STATUS", map[string]any{}, label, identifying)

	// only one of multipleBirthBoolean / multipleBirthInteger is present
	AppendProperties(data["multipleBirthBoolean"], "multiple_birth", props)
	AppendProperties(data["multipleBirthInteger"], "multiple_birth_order", props)

	err := ProcessBackboneElements(ctx, tc, data["contact"], "HAS_CONTACT", "PatientContact", label, identifying,
		func(contact map[string]any, contactIdentifying, contactProps map[string]any) error {
			ProcessCodeableConcepts(tc, contact["relationship"], "PatientContactRelationship", "relationship", "HAS_RELATIONSHIP", map[string]any{}, "PatientContact", contactIdentifying)
			AppendHumanNames(contact["name"], "name", contactProps)
			AppendContactPoints(contact["telecom"], "telecom", contactProps)
			AppendAddresses(contact["address"], "address", contactProps)
			AppendProperties(contact["gender"], "gender", contactProps)
			ProcessReferences(tc, contact["organization"], []string{"Organization"}, "associated_organization", "ASSOCIATED_WITH", "PatientContact", contactIdentifying)
			AppendPeriod(contact["period"], "period", contactProps)
			return nil
		})
	if err != nil {
		return err
	}

	// communication languages; a preferred language is flagged on both the
	// relationship and the property key
	for n, item := range asList(data["communication"]) {
		communication := asMap(item)
		if communication == nil {
			continue
		}
		keyName := numberedKey("language", n)
		relProps := map[string]any{}
		if preferred, _ := communication["preferred"].(bool); preferred {
			relProps["preferred"] = true
			keyName += "_(preferred)"
		}
		ProcessCodeableConcepts(tc, communication["language"], "Language", keyName, "USES_LANGUAGE", relProps, label, identifying)
	}

	ProcessReferences(tc, data["generalPractitioner"], []string{"Organization", "Practitioner", "PractitionerRole"}, "general_practitioner", "HAS_PRACTITIONER", label, identifying)
	ProcessReferences(tc, data["managingOrganization"], []string{"Organization"}, "managed_by", "MANAGED_BY", label, identifying)

	// patient links carry their type in both the property key and the
	// relationship type (e.g. "replaced-by" -> REPLACED_BY)
	for n, item := range asList(data["link"]) {
		link := asMap(item)
		if link == nil {
			continue
		}
		linkType := getString(link, "type")
		if linkType == "" {
			tc.Logger.Warn("Could not process Patient.link: missing Patient.link.type")
			continue
		}
		keyName := fmt.Sprintf("link_%s", linkType)
		if n > 0 {
			keyName = fmt.Sprintf("link%d_%s", n+1, linkType)
		}
		relType := strings.ReplaceAll(strings.ToUpper(linkType), "-", "_")
		ProcessReferences(tc, link["other"], []string{"Patient", "RelatedPerson"}, keyName, relType, label, identifying)
	}

	tc.Batch.AppendNodeMerge([]string{label}, identifying, props)
	return nil
}
