package extpkg

import (
	"github.com/go-playground/validator/v10"

	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExtensionPackage pairs a manifest with the WASM bytes and any named
// auxiliary assets. It is transient: materialized during install or
// publish, never persisted as a single unit.
type ExtensionPackage struct {
	Manifest ExtensionManifest
	WASM     []byte
	Assets   map[string][]byte // asset name -> bytes, keyed the same as Manifest.Assets
	Source   string            // store identifier the package was resolved from
}

// Validate checks m's struct tags and the package-level invariant that the
// manifest's recorded checksums match the actual bytes. A failing struct
// tag, a missing asset or an asset checksum mismatch becomes an Issue with
// severity Error; a missing WASM body or a WASM checksum mismatch is
// Critical.
func (p ExtensionPackage) Validate() *quelleerr.Error {
	var issues []quelleerr.Issue

	if err := validate.Struct(p.Manifest); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				issues = append(issues, quelleerr.Issue{
					Severity: quelleerr.SeverityError,
					Message:  fe.Error(),
					Field:    fe.Namespace(),
				})
			}
		} else {
			issues = append(issues, quelleerr.Issue{Severity: quelleerr.SeverityCritical, Message: err.Error()})
		}
	}

	if len(p.WASM) == 0 {
		issues = append(issues, quelleerr.Issue{
			Severity: quelleerr.SeverityCritical,
			Message:  "package has no wasm bytes",
			Field:    "wasm_file",
		})
	} else if !p.Manifest.WASMFile.Verify(p.WASM) {
		issues = append(issues, quelleerr.Issue{
			Severity: quelleerr.SeverityCritical,
			Message:  "wasm bytes do not match manifest checksum",
			Field:    "wasm_file",
		})
	}

	for _, ref := range p.Manifest.Assets {
		data, ok := p.Assets[ref.Name]
		if !ok {
			issues = append(issues, quelleerr.Issue{
				Severity: quelleerr.SeverityError,
				Message:  "asset " + ref.Name + " missing from package",
				Field:    "assets." + ref.Name,
			})
			continue
		}
		if !ref.File.Verify(data) {
			issues = append(issues, quelleerr.Issue{
				Severity: quelleerr.SeverityError,
				Message:  "asset " + ref.Name + " checksum mismatch",
				Field:    "assets." + ref.Name,
			})
		}
	}

	if len(issues) == 0 {
		return nil
	}

	qe := quelleerr.New(quelleerr.ValidationFailed, "validate_package").WithIssues(issues)
	return qe
}

// Recompute rewrites p.Manifest's checksums (WASMFile and each
// AssetReference) to match p.WASM / p.Assets, as publish requires before
// emitting the on-disk layout.
func (p *ExtensionPackage) Recompute(algo Algorithm) error {
	wasmRef, err := NewFileReference(p.Manifest.WASMFile.Path, algo, p.WASM)
	if err != nil {
		return err
	}
	p.Manifest.WASMFile = wasmRef

	for i, ref := range p.Manifest.Assets {
		data := p.Assets[ref.Name]
		newRef, err := NewFileReference(ref.File.Path, algo, data)
		if err != nil {
			return err
		}
		p.Manifest.Assets[i].File = newRef
	}
	return nil
}
