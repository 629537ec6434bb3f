package model

import internalmodel "github.com/FlowRegSuite/flowreg-session-gui/internal/model"

// FieldType re-exports the internal FieldType enumeration.
type FieldType = internalmodel.FieldType

const (
	FieldTypeString     = internalmodel.FieldTypeString
	FieldTypeInteger    = internalmodel.FieldTypeInteger
	FieldTypeNumber     = internalmodel.FieldTypeNumber
	FieldTypeBoolean    = internalmodel.FieldTypeBoolean
	FieldTypeObject     = internalmodel.FieldTypeObject
	FieldTypeJSON       = internalmodel.FieldTypeJSON
	FieldTypeJSONOrPath = internalmodel.FieldTypeJSONOrPath
)

const (
	ValidationRuleMin       = internalmodel.ValidationRuleMin
	ValidationRuleMax       = internalmodel.ValidationRuleMax
	ValidationRuleMinLength = internalmodel.ValidationRuleMinLength
	ValidationRuleMaxLength = internalmodel.ValidationRuleMaxLength
	ValidationRulePattern   = internalmodel.ValidationRulePattern
)

type ValidationRule = internalmodel.ValidationRule
type Field = internalmodel.Field
type FormModel = internalmodel.FormModel
type Source = internalmodel.Source
