package model

import (
	"regexp"
	"slices"
	"strings"

	"github.com/Ramsey-B/fern/pkg/graph"
)

// Marker properties written on placeholder nodes and relationships created
// for logical references; the resolution pass finds and replaces them
// later. These keys are a persisted contract.
const (
	PendingMarker        = "fern_pending"
	ReferenceTypeKey     = "reference_type"
	ReferenceTypeLogical = "logical"
	IdentifierValueKey   = "identifier_value"
	IdentifierSystemKey  = "identifier_system"
)

// resourceTypes is the closed vocabulary of FHIR R4B resource type names
// used to recognize literal reference URLs.
var resourceTypes = []string{
	"Account", "ActivityDefinition", "AdministrableProductDefinition",
	"AdverseEvent", "AllergyIntolerance", "Appointment", "AppointmentResponse",
	"AuditEvent", "Basic", "Binary", "BiologicallyDerivedProduct",
	"BodyStructure", "Bundle", "CapabilityStatement", "CarePlan", "CareTeam",
	"CatalogEntry", "ChargeItem", "ChargeItemDefinition", "Citation", "Claim",
	"ClaimResponse", "ClinicalImpression", "ClinicalUseDefinition",
	"CodeSystem", "Communication", "CommunicationRequest",
	"CompartmentDefinition", "Composition", "ConceptMap", "Condition",
	"Consent", "Contract", "Coverage", "CoverageEligibilityRequest",
	"CoverageEligibilityResponse", "DetectedIssue", "Device",
	"DeviceDefinition", "DeviceMetric", "DeviceRequest", "DeviceUseStatement",
	"DiagnosticReport", "DocumentManifest", "DocumentReference", "Encounter",
	"Endpoint", "EnrollmentRequest", "EnrollmentResponse", "EpisodeOfCare",
	"EventDefinition", "Evidence", "EvidenceReport", "EvidenceVariable",
	"ExampleScenario", "ExplanationOfBenefit", "FamilyMemberHistory", "Flag",
	"Goal", "GraphDefinition", "Group", "GuidanceResponse", "HealthcareService",
	"ImagingStudy", "Immunization", "ImmunizationEvaluation",
	"ImmunizationRecommendation", "ImplementationGuide", "Ingredient",
	"InsurancePlan", "Invoice", "Library", "Linkage", "List", "Location",
	"ManufacturedItemDefinition", "Measure", "MeasureReport", "Media",
	"Medication", "MedicationAdministration", "MedicationDispense",
	"MedicationKnowledge", "MedicationRequest", "MedicationStatement",
	"MedicinalProductDefinition", "MessageDefinition", "MessageHeader",
	"MolecularSequence", "NamingSystem", "NutritionOrder", "NutritionProduct",
	"Observation", "ObservationDefinition", "OperationDefinition",
	"OperationOutcome", "Organization", "OrganizationAffiliation",
	"PackagedProductDefinition", "Patient", "PaymentNotice",
	"PaymentReconciliation", "Person", "PlanDefinition", "Practitioner",
	"PractitionerRole", "Procedure", "Provenance", "Questionnaire",
	"QuestionnaireResponse", "RegulatedAuthorization", "RelatedPerson",
	"RequestGroup", "ResearchDefinition", "ResearchElementDefinition",
	"ResearchStudy", "ResearchSubject", "RiskAssessment", "Schedule",
	"SearchParameter", "ServiceRequest", "Slot", "Specimen",
	"SpecimenDefinition", "StructureDefinition", "StructureMap", "Subscription",
	"SubscriptionStatus", "SubscriptionTopic", "Substance",
	"SubstanceDefinition", "SupplyDelivery", "SupplyRequest", "Task",
	"TerminologyCapabilities", "TestReport", "TestScript", "ValueSet",
	"VerificationResult", "VisionPrescription",
}

// referencePattern matches literal reference URLs, absolute or relative,
// e.g. "http://example.org/fhir/Observation/1x2" or "Observation/1x2".
// Group 1 is the resource type, group 2 the logical id.
var referencePattern = regexp.MustCompile(
	`(?:(?:http|https)://(?:[A-Za-z0-9\-\\.:%$]*/)+)?(` +
		strings.Join(resourceTypes, "|") +
		`)/([A-Za-z0-9\-.]{1,64})(/_history/[A-Za-z0-9\-.]{1,64})?`)

// ProcessReferences handles Reference datatype(s). Exactly one outcome per
// reference:
//   - a literal reference URL becomes a relationship to the referenced
//     node, identified by the fhir_id extracted from the URL
//   - otherwise a logical (identifier-based) reference becomes a
//     placeholder node and relationship carrying the pending marker, to be
//     replaced by the deferred resolution pass
//   - otherwise a display text is flattened onto the parent under key; the
//     display also serves as the fallback when a literal URL yields no id
//     or a logical identifier is incomplete
//
// allowedTypes constrains what the reference may point at: a single entry
// fixes the target label outright, several entries mean the type must be
// determined from the reference and checked against them. A reference that
// yields no outcome, or whose type conflicts with allowedTypes, is dropped
// with a warning.
func ProcessReferences(tc *Context, references any, allowedTypes []string, key, relType, parentLabel string, parentProps map[string]any) {
	for n, item := range asList(references) {
		reference := asMap(item)
		if reference == nil {
			continue
		}
		propertyName := numberedKey(key, n)
		refURL := getString(reference, "reference")

		var label string
		switch {
		case len(allowedTypes) == 1:
			label = allowedTypes[0]
		case getString(reference, "type") != "":
			t := getString(reference, "type")
			if len(allowedTypes) > 1 && !slices.Contains(allowedTypes, t) {
				tc.Logger.Warnf("Could not process Reference object: Reference.type %q does not match allowed resource types", t)
				continue
			}
			label = t
		case refURL != "":
			m := referencePattern.FindStringSubmatch(refURL)
			if m == nil {
				tc.Logger.Warnf("Could not determine referenced resource type %q", refURL)
				continue
			}
			if len(allowedTypes) > 1 && !slices.Contains(allowedTypes, m[1]) {
				tc.Logger.Warnf("Could not process Reference object: determined resource type %q does not match allowed resource types", m[1])
				continue
			}
			label = m[1]
		default:
			tc.Logger.Warn("Could not determine referenced resource type: neither Reference.type nor Reference.reference given")
			continue
		}

		identifier := asMap(reference["identifier"])

		// literal reference
		if refURL != "" {
			if m := referencePattern.FindStringSubmatch(refURL); m != nil && m[2] != "" {
				tc.Batch.AppendRelationshipMerge(graph.RelationshipMerge{
					Node1Label:      parentLabel,
					Node1Properties: parentProps,
					Node2Label:      label,
					Node2Properties: map[string]any{"fhir_id": m[2]},
					RelType:         relType,
					RelProperties:   map[string]any{},
				})
				continue
			}
			tc.Logger.Warnf("Could not extract an id from reference %q", refURL)
		}

		// logical reference
		if identifier != nil {
			value := getString(identifier, "value")
			system := getString(identifier, "system")
			if value != "" && system != "" {
				// The placeholder may be created more than once under
				// parallel load; the resolution pass deletes placeholders
				// by content, so duplicates collapse there.
				placeholder := map[string]any{
					PendingMarker:       true,
					IdentifierValueKey:  value,
					IdentifierSystemKey: system,
				}
				tc.Batch.AppendRelationshipMerge(graph.RelationshipMerge{
					Node1Label:      parentLabel,
					Node1Properties: parentProps,
					Node2Label:      label,
					Node2Properties: placeholder,
					RelType:         relType,
					RelProperties: map[string]any{
						PendingMarker:    true,
						ReferenceTypeKey: ReferenceTypeLogical,
					},
				})
				tc.Logger.Debug("Created placeholder node for logical reference")
				continue
			}
			tc.Logger.Warn("Could not process Reference object: missing Reference.identifier.value or Reference.identifier.system")
		}

		// display, also the fallback when literal or logical resolution
		// failed
		if display := getString(reference, "display"); display != "" {
			tc.Batch.AppendNodeMerge([]string{parentLabel}, parentProps, mergedWith(parentProps, map[string]any{propertyName: display}))
			continue
		}

		if refURL == "" && identifier == nil {
			tc.Logger.Warn("Could not process Reference object: missing Reference.reference, Reference.identifier and Reference.display")
		}
	}
}
