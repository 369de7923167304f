package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// History errors
	CodeHistoryIndexOutOfRange Code = "HISTORY_INDEX_OUT_OF_RANGE"
	CodeHistoryEmpty           Code = "HISTORY_EMPTY"

	// Story errors
	CodePassageNotFound   Code = "PASSAGE_NOT_FOUND"
	CodePassageNameEmpty  Code = "PASSAGE_NAME_EMPTY"
	CodePassageDuplicate  Code = "PASSAGE_DUPLICATE"
	CodeStoryScriptFailed Code = "STORY_SCRIPT_FAILED"

	// Save/load errors
	CodeSaveSlotOutOfRange Code = "SAVE_SLOT_OUT_OF_RANGE"
	CodeSaveNotFound       Code = "SAVE_NOT_FOUND"
	CodeSaveCorrupt        Code = "SAVE_CORRUPT"

	// Migration errors
	CodeMigrationStepMissing   Code = "MIGRATION_STEP_MISSING"
	CodeMigrationStepFailed    Code = "MIGRATION_STEP_FAILED"
	CodeMigrationDuplicateStep Code = "MIGRATION_DUPLICATE_STEP"

	// Compatibility errors
	CodeSaveVersionNewer   Code = "SAVE_VERSION_NEWER"
	CodeSaveVersionInvalid Code = "SAVE_VERSION_INVALID"

	// Serialization errors
	CodeSerializeUnsupported Code = "SERIALIZE_UNSUPPORTED_VALUE"
	CodeSerializeUnknownTag  Code = "SERIALIZE_UNKNOWN_TAG"
	CodeSerializeDuplicate   Code = "SERIALIZE_DUPLICATE_TAG"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Engine errors
	CodeEngineNameEmpty      Code = "ENGINE_NAME_EMPTY"
	CodeEngineInvalidConfig  Code = "ENGINE_INVALID_CONFIG"
	CodeEngineStorageMissing Code = "ENGINE_STORAGE_MISSING"
)
