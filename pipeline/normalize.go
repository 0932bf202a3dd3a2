package pipeline

import (
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/normalize"
	"github.com/teranos/civicload/registry"
)

// normalizeFiles turns a dataset's raw files into UTF-8 CSVs under
// {validatedDir}/{subpath}/{year}/ and returns their paths, sorted
func normalizeFiles(d registry.Descriptor, raw []string, validatedDir string, enc normalize.EncodingOptions, log *zap.SugaredLogger) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, src := range raw {
		year, known := normalize.YearOf(src)
		if !d.Processable(year, known) {
			log.Debugw("Skipping file before minimum year", logger.FieldFile, src, "min_year", d.MinYear)
			continue
		}

		dir := filepath.Join(validatedDir, d.Subpath)
		if known {
			dir = filepath.Join(dir, strconv.Itoa(year))
		}

		produced, err := convert(d, src, dir, log)
		if err != nil {
			return nil, asNormalizationError(src, err)
		}

		for _, p := range produced {
			if renamed, err := normalize.RenameHeaders(p, d.RenamesFor(year)); err != nil {
				return nil, asNormalizationError(p, err)
			} else if renamed {
				log.Infow("Renamed headers", logger.FieldFile, p, "year", year)
			}

			res, err := normalize.NormalizeEncoding(p, p, enc)
			if err != nil {
				return nil, asNormalizationError(p, err)
			}
			if res.Rewritten {
				log.Debugw("Re-encoded to UTF-8", logger.FieldFile, p, "charset", res.Charset, "had_bom", res.HadBOM)
			}
			add(p)
		}
	}

	if len(out) == 0 {
		return nil, &normalize.NormalizationError{
			Path: filepath.Join(validatedDir, d.Subpath),
			Err:  errors.Newf("no files to validate for %s", d.Name),
		}
	}
	sort.Strings(out)
	return out, nil
}

// convert produces the CSV files for one raw file by format
func convert(d registry.Descriptor, src, dir string, log *zap.SugaredLogger) ([]string, error) {
	switch d.Format {
	case registry.FormatXLSX:
		dst := filepath.Join(dir, normalize.ReplaceExt(filepath.Base(src), ".csv"))
		res, err := normalize.ToDelimitedText(src, dst, normalize.SheetOptions{Sheet: d.Sheet})
		if errors.Is(err, normalize.ErrNotWorkbook) {
			log.Warnw("File is not a workbook, copying as CSV", logger.FieldFile, src)
			return []string{dst}, normalize.CopyFile(src, dst)
		}
		if err != nil {
			return nil, err
		}
		log.Debugw("Converted workbook", logger.FieldFile, src, "sheet", res.Sheet, logger.FieldRows, res.Rows)
		return []string{dst}, nil

	case registry.FormatZIP:
		extracted, err := normalize.ExtractArchive(src, dir)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(extracted))
		for i, ex := range extracted {
			paths[i] = ex.Path
		}
		return paths, nil

	default:
		dst := filepath.Join(dir, filepath.Base(src))
		return []string{dst}, normalize.CopyFile(src, dst)
	}
}

func asNormalizationError(path string, err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	return &normalize.NormalizationError{Path: path, Err: err}
}
