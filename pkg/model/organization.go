package model

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/fhir"
)

// OrganizationModel maps the FHIR resource 'Organization', based on the
// official HL7 profile: https://hl7.org/fhir/organization.html
type OrganizationModel struct{}

// NewOrganizationModel creates the Organization model
func NewOrganizationModel() *OrganizationModel {
	return &OrganizationModel{}
}

func (m *OrganizationModel) ResourceType() string {
	return "Organization"
}

func (m *OrganizationModel) Initialize(ctx context.Context, cc ConstraintCreator) (int, error) {
	added, err := createConstraints(ctx, cc, commonConstraints)
	if err != nil {
		return added, err
	}

	n, err := createConstraints(ctx, cc, []constraintDef{
		{"Endpoint", []string{"fhir_id"}},
		{"OrganizationContact", []string{"temp_id"}},
		{"OrganizationContactPurpose", codingIdentity},
		{"OrganizationType", codingIdentity},
	})
	return added + n, err
}

func (m *OrganizationModel) Transform(ctx context.Context, res *fhir.Resource, tc *Context) error {
	data := res.Data
	label := "Organization"

	// an organization needs at least Organization.id
	id := res.ID()
	if id == "" {
		tc.Logger.Warn("Could not process Organization resource: missing Organization.id")
		return nil
	}

	props := map[string]any{"fhir_id": id}
	identifying := map[string]any{"fhir_id": id}

	ProcessIdentifiers(tc, data["identifier"], "IDENTIFIED_BY", label, identifying)

	AppendProperties(data["active"], "active", props)
	ProcessCodeableConcepts(tc, data["type"], "OrganizationType", "type", "HAS_TYPE", map[string]any{}, label, identifying)
	AppendProperties(data["name"], "name", props)
	AppendProperties(data["alias"], "alias", props)
	AppendContactPoints(data["telecom"], "telecom", props)
	AppendAddresses(data["address"], "address", props)

	ProcessReferences(tc, data["partOf"], []string{"Organization"}, "part_of", "PART_OF", label, identifying)

	err := ProcessBackboneElements(ctx, tc, data["contact"], "HAS_CONTACT", "OrganizationContact", label, identifying,
		func(contact map[string]any, contactIdentifying, contactProps map[string]any) error {
			ProcessCodeableConcepts(tc, contact["purpose"], "OrganizationContactPurpose", "purpose", "HAS_PURPOSE", map[string]any{}, "OrganizationContact", contactIdentifying)
			AppendHumanNames(contact["name"], "name", contactProps)
			AppendContactPoints(contact["telecom"], "telecom", contactProps)
			AppendAddresses(contact["address"], "address", contactProps)
			return nil
		})
	if err != nil {
		return err
	}

	ProcessReferences(tc, data["endpoint"], []string{"Endpoint"}, "endpoint", "HAS_ENDPOINT", label, identifying)

	tc.Batch.AppendNodeMerge([]string{label}, identifying, props)
	return nil
}
