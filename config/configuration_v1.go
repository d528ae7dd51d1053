package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs/code_directory"
	"github.com/KatelynHaworth/csblob/codesign/blobs/entitlements"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/hash"
)

var (
	ErrMissingFile = errors.New("target is missing a file")

	// ErrConflictingRequirements is returned when a target
	// names both a requirements file and asks for a
	// generated designated requirement.
	ErrConflictingRequirements = errors.New("requirements and designated_requirement can't both be set")
)

// DefaultHashTypes are the CodeDirectory hash
// types used when a target doesn't list any.
var DefaultHashTypes = []string{"SHA256"}

type ConfigurationV1 struct {
	ConfigVersion int      `json:"config_version" yaml:"config_version"`
	Targets       []Target `json:"targets" yaml:"targets"`
}

func (config *ConfigurationV1) GetTargets() []Target {
	return config.Targets
}

func (config *ConfigurationV1) validate() error {
	for i, target := range config.Targets {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
	}

	return nil
}

// Target describes a single file to sign and
// the signature it should be given.
type Target struct {
	File       string   `json:"file" yaml:"file"`
	Identifier string   `json:"identifier" yaml:"identifier"`
	TeamID     string   `json:"team_id" yaml:"team_id"`
	Flags      []string `json:"flags" yaml:"flags"`
	HashTypes  []string `json:"hash_types" yaml:"hash_types"`

	// PageSize defaults to 4096 when unset,
	// zero hashes the code as one page.
	PageSize *uint32 `json:"page_size" yaml:"page_size"`

	Platform   uint8  `json:"platform" yaml:"platform"`
	Runtime    string `json:"runtime" yaml:"runtime"`
	PreEncrypt bool   `json:"pre_encrypt" yaml:"pre_encrypt"`

	Entitlements    string `json:"entitlements" yaml:"entitlements"`
	DEREntitlements bool   `json:"der_entitlements" yaml:"der_entitlements"`

	InfoPlist         string `json:"info_plist" yaml:"info_plist"`
	ResourceDirectory string `json:"resource_directory" yaml:"resource_directory"`

	Requirements          string `json:"requirements" yaml:"requirements"`
	DesignatedRequirement bool   `json:"designated_requirement" yaml:"designated_requirement"`
	SignerCommonName      string `json:"signer_common_name" yaml:"signer_common_name"`

	SignaturePlaceholder bool `json:"signature_placeholder" yaml:"signature_placeholder"`
	Concurrency          int  `json:"concurrency" yaml:"concurrency"`

	// Output is a local path or s3://bucket/key
	// the signature is written to, when empty the
	// signature is embedded into File.
	Output string `json:"output" yaml:"output"`
}

// Validate checks the fields of the target
// that don't require reading any file.
func (target Target) Validate() error {
	if target.File == "" {
		return ErrMissingFile
	}

	if target.Requirements != "" && target.DesignatedRequirement {
		return ErrConflictingRequirements
	}

	if _, err := target.hashTypes(); err != nil {
		return err
	}

	if _, err := target.flags(); err != nil {
		return err
	}

	if target.Runtime != "" {
		if _, err := code_directory.ParseRuntimeVersion(target.Runtime); err != nil {
			return fmt.Errorf("runtime version: %w", err)
		}
	}

	return nil
}

// GetIdentifier returns the configured identifier
// or the name of the file without its extension.
func (target Target) GetIdentifier() string {
	if target.Identifier != "" {
		return target.Identifier
	}

	base := filepath.Base(target.File)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (target Target) GetPageSize() uint32 {
	if target.PageSize == nil {
		return code_directory.DefaultPageSize
	}

	return *target.PageSize
}

func (target Target) hashTypes() ([]hash.Type, error) {
	names := target.HashTypes
	if len(names) == 0 {
		names = DefaultHashTypes
	}

	types := make([]hash.Type, len(names))
	for i, name := range names {
		hashType, err := hash.ParseType(name)
		if err != nil {
			return nil, err
		}

		types[i] = hashType
	}

	return types, nil
}

func (target Target) flags() (code_directory.CodeDirectoryFlag, error) {
	var flags code_directory.CodeDirectoryFlag

	for _, name := range target.Flags {
		flag, err := code_directory.ParseFlag(name)
		if err != nil {
			return 0, err
		}

		flags |= flag
	}

	return flags, nil
}

// SignOptions resolves the target into the options
// of a codesign.Signer, reading every file it names.
func (target Target) SignOptions() (codesign.Options, error) {
	opts := codesign.Options{
		Identifier:           target.GetIdentifier(),
		TeamID:               target.TeamID,
		Platform:             target.Platform,
		PreEncrypt:           target.PreEncrypt,
		PageSize:             target.GetPageSize(),
		DEREntitlements:      target.DEREntitlements,
		SignaturePlaceholder: target.SignaturePlaceholder,
		Concurrency:          target.Concurrency,
	}

	var err error
	if opts.HashTypes, err = target.hashTypes(); err != nil {
		return opts, err
	}

	if opts.Flags, err = target.flags(); err != nil {
		return opts, err
	}

	if target.Runtime != "" {
		if opts.Runtime, err = code_directory.ParseRuntimeVersion(target.Runtime); err != nil {
			return opts, fmt.Errorf("runtime version: %w", err)
		}
	}

	if target.Entitlements != "" {
		if opts.EntitlementsPlist, err = os.ReadFile(target.Entitlements); err != nil {
			return opts, fmt.Errorf("read entitlements: %w", err)
		}

		if opts.Entitlements, err = entitlements.ParsePlist(opts.EntitlementsPlist); err != nil {
			return opts, err
		}
	}

	if target.InfoPlist != "" {
		if opts.InfoPlist, err = os.ReadFile(target.InfoPlist); err != nil {
			return opts, fmt.Errorf("read Info.plist: %w", err)
		}
	}

	if target.ResourceDirectory != "" {
		if opts.ResourceDirectory, err = os.ReadFile(target.ResourceDirectory); err != nil {
			return opts, fmt.Errorf("read resource directory: %w", err)
		}
	}

	switch {
	case target.Requirements != "":
		if opts.Requirements, err = os.ReadFile(target.Requirements); err != nil {
			return opts, fmt.Errorf("read requirements: %w", err)
		}

	case target.DesignatedRequirement:
		designated, err := requirement.Designated(opts.Identifier, target.SignerCommonName)
		if err != nil {
			return opts, fmt.Errorf("make designated requirement: %w", err)
		}

		set := requirement.NewSetMaker()
		set.Add(requirement.TypeDesignated, designated)

		reqs, err := set.Make()
		if err != nil {
			return opts, fmt.Errorf("make requirement set: %w", err)
		}

		opts.Requirements = reqs.Bytes()
	}

	return opts, nil
}
