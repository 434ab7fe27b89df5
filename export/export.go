// Package export is the driver described by §4.11: it parses the
// MKSSI RCS archive, materializes every revision, walks project.pj
// (and each variant project it names) trunk-forward, and writes the
// resulting git fast-import command stream.
package export

import (
	"bufio"
	"io"

	"github.com/danielrlewis/mkssi-fast-export/authormap"
	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/fastimport"
	"github.com/danielrlewis/mkssi-fast-export/graph"
	"github.com/danielrlewis/mkssi-fast-export/keyword"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/sirupsen/logrus"
)

// TrunkBranch is the branch name given to project.pj's own trunk.
const TrunkBranch = "master"

// ProjectManifestName is the canonical name of the root project
// manifest, always present under --rcs-dir (explicitly ingested,
// since the directory walk in rcs.Load skips every "*.pj").
const ProjectManifestName = "project.pj"

// Options configures one export run.
type Options struct {
	RCSDir      string // required
	ProjDir     string // optional, tip/uncheckpointed state
	SourceDir   string // substituted into $Source$/$Header$
	PnameDir    string // substituted into $ProjectName$
	TrunkBranch string // branch name for project.pj's own trunk; defaults to TrunkBranch
	TrunkLimit  revnum.Number
	AuthorMap   *authormap.Map
	AuthorList  bool
	Graph       *graph.Builder // optional diagnostic dump
	Logger      *logrus.Logger
}

// trunkBranchName returns the configured trunk branch name, falling
// back to the package default when unset.
func (o Options) trunkBranchName() string {
	if o.TrunkBranch == "" {
		return TrunkBranch
	}
	return o.TrunkBranch
}

// Run executes one export: in normal mode it writes the fast-import
// stream to out and returns a non-nil error only for a fatal
// diagnostic (matching §6's exit code 1); in --authorlist mode it
// writes one unresolved username per line instead.
func Run(opts Options, out io.Writer) error {
	sink := diag.NewSink(opts.Logger)

	repo, err := rcs.Load(opts.RCSDir, sink)
	if err != nil {
		sink.Fatal(asDiagError(err, diag.Io, opts.RCSDir))
		return sink.FatalError()
	}

	pjFile, err := loadManifest(opts.RCSDir, repo, sink, ProjectManifestName)
	if err != nil {
		sink.Fatal(asDiagError(err, diag.Configuration, ProjectManifestName))
		return sink.FatalError()
	}

	if opts.AuthorList {
		return writeAuthorList(repo, opts.AuthorMap, out)
	}

	bw := bufio.NewWriter(out)
	fw := fastimport.New(bw)
	fw.WriteFeatureDone()

	hist := newRepoHistory(repo, opts.AuthorMap)
	sourceDir, pnameDir := opts.SourceDir, opts.PnameDir
	if sourceDir == "" {
		sink.Warn(diag.New(diag.Configuration, ProjectManifestName, "",
			"--source-dir not given; falling back to --rcs-dir for $Source$/$Header$ expansion"))
		sourceDir = opts.RCSDir
	}
	if pnameDir == "" {
		sink.Warn(diag.New(diag.Configuration, ProjectManifestName, "",
			"--pname-dir not given; falling back to --rcs-dir for $ProjectName$ expansion"))
		pnameDir = opts.RCSDir
	}
	kwctx := keyword.Context{
		SourceDir:     sourceDir,
		PnameDir:      pnameDir,
		ProjectPJName: ProjectManifestName,
	}

	d := &driver{
		repo:             repo,
		opts:             opts,
		sink:             sink,
		hist:             hist,
		fw:               fw,
		kwctx:            kwctx,
		graph:            opts.Graph,
		branchHasCommits: make(map[string]bool),
	}

	quiet := logrus.New()
	quiet.Out = io.Discard
	paths := scanCanonicalPaths(repo, opts, pjFile, diag.NewSink(quiet))

	bassign := &blobWriter{fw: fw, ctx: kwctx, sink: sink, projDir: opts.ProjDir, paths: paths}
	bassign.assignAll(repo, map[string]bool{normalizeName(ProjectManifestName): true})
	d.markCounter = bassign.mark

	d.walkProject(pjFile)
	if !sink.HasFatal() {
		d.emitTips()
	}

	if !sink.HasFatal() {
		fw.WriteDone()
	}
	if err := bw.Flush(); err != nil {
		sink.Fatal(diag.Wrap(diag.Io, "stdout", "", err))
	}
	if fwErr := fw.Err(); fwErr != nil {
		sink.Fatal(diag.Wrap(diag.Io, "stdout", "", fwErr))
	}
	if sink.HasFatal() {
		return sink.FatalError()
	}
	return nil
}

// asDiagError passes an already-diagnosed error through unchanged
// (rcs.Load and loadManifest report their own *diag.Error), falling
// back to wrapping it fresh otherwise.
func asDiagError(err error, kind diag.Kind, file string) *diag.Error {
	if de, ok := err.(*diag.Error); ok {
		return de
	}
	return diag.Wrap(kind, file, "", err)
}
