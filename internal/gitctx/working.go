package gitctx

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	godiff "github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/temirov/codeprompt/internal/utils"
)

// WorkingDiff returns the unified patch from HEAD to the working tree, covering staged
// and unstaged changes to tracked files. Untracked files are left out. A repository
// without commits diffs against an empty tree.
func (provider *Provider) WorkingDiff() (string, error) {
	worktree, worktreeErr := provider.repository.Worktree()
	if worktreeErr != nil {
		return "", fmt.Errorf("open worktree: %w", worktreeErr)
	}
	status, statusErr := worktree.Status()
	if statusErr != nil {
		return "", fmt.Errorf("worktree status: %w", statusErr)
	}
	headTree, headErr := provider.headTree()
	if headErr != nil {
		return "", headErr
	}

	changedPaths := make([]string, 0, len(status))
	for changedPath, fileStatus := range status {
		if fileStatus.Staging == git.Untracked || (fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified) {
			continue
		}
		changedPaths = append(changedPaths, changedPath)
	}
	sort.Strings(changedPaths)

	var patch workingPatch
	for _, changedPath := range changedPaths {
		from, fromErr := headSide(headTree, changedPath)
		if fromErr != nil {
			return "", fromErr
		}
		to, toErr := worktreeSide(worktree, changedPath, from)
		if toErr != nil {
			return "", toErr
		}
		if filePatch, changed := newWorkingFilePatch(from, to); changed {
			patch.files = append(patch.files, filePatch)
		}
	}
	if len(patch.files) == 0 {
		return "", nil
	}

	var buffer bytes.Buffer
	if encodeErr := fdiff.NewUnifiedEncoder(&buffer, fdiff.DefaultContextLines).Encode(patch); encodeErr != nil {
		return "", fmt.Errorf("encode working tree diff: %w", encodeErr)
	}
	return buffer.String(), nil
}

func (provider *Provider) headTree() (*object.Tree, error) {
	head, headErr := provider.repository.Head()
	if errors.Is(headErr, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if headErr != nil {
		return nil, &RefNotFoundError{Ref: string(plumbing.HEAD), Err: headErr}
	}
	commit, commitErr := provider.repository.CommitObject(head.Hash())
	if commitErr != nil {
		return nil, &RefNotFoundError{Ref: string(plumbing.HEAD), Err: commitErr}
	}
	return commit.Tree()
}

// workingFile is one side of a working tree change.
type workingFile struct {
	path    string
	hash    plumbing.Hash
	mode    filemode.FileMode
	content []byte
}

func (file *workingFile) Hash() plumbing.Hash     { return file.hash }
func (file *workingFile) Mode() filemode.FileMode { return file.mode }
func (file *workingFile) Path() string            { return file.path }

func headSide(headTree *object.Tree, filePath string) (*workingFile, error) {
	if headTree == nil {
		return nil, nil
	}
	treeFile, fileErr := headTree.File(filePath)
	if errors.Is(fileErr, object.ErrFileNotFound) {
		return nil, nil
	}
	if fileErr != nil {
		return nil, fmt.Errorf("read %s at HEAD: %w", filePath, fileErr)
	}
	contents, contentsErr := treeFile.Contents()
	if contentsErr != nil {
		return nil, fmt.Errorf("read %s at HEAD: %w", filePath, contentsErr)
	}
	return &workingFile{path: filePath, hash: treeFile.Hash, mode: treeFile.Mode, content: []byte(contents)}, nil
}

func worktreeSide(worktree *git.Worktree, filePath string, headFile *workingFile) (*workingFile, error) {
	content, readErr := util.ReadFile(worktree.Filesystem, filePath)
	if errors.Is(readErr, os.ErrNotExist) {
		return nil, nil
	}
	if readErr != nil {
		return nil, fmt.Errorf("read %s from worktree: %w", filePath, readErr)
	}
	mode := filemode.Regular
	if headFile != nil {
		mode = headFile.mode
	}
	return &workingFile{
		path:    filePath,
		hash:    plumbing.ComputeHash(plumbing.BlobObject, content),
		mode:    mode,
		content: content,
	}, nil
}

type workingFilePatch struct {
	from   *workingFile
	to     *workingFile
	binary bool
	chunks []fdiff.Chunk
}

func newWorkingFilePatch(from *workingFile, to *workingFile) (*workingFilePatch, bool) {
	if from == nil && to == nil {
		return nil, false
	}
	if from != nil && to != nil && from.hash == to.hash {
		return nil, false
	}
	filePatch := &workingFilePatch{from: from, to: to}
	var fromContent, toContent []byte
	if from != nil {
		fromContent = from.content
	}
	if to != nil {
		toContent = to.content
	}
	if utils.IsBinary(fromContent) || utils.IsBinary(toContent) {
		filePatch.binary = true
		return filePatch, true
	}
	for _, difference := range godiff.Do(string(fromContent), string(toContent)) {
		filePatch.chunks = append(filePatch.chunks, workingChunk{content: difference.Text, operation: chunkOperation(difference.Type)})
	}
	return filePatch, true
}

func (filePatch *workingFilePatch) IsBinary() bool { return filePatch.binary }

func (filePatch *workingFilePatch) Files() (fdiff.File, fdiff.File) {
	var from, to fdiff.File
	if filePatch.from != nil {
		from = filePatch.from
	}
	if filePatch.to != nil {
		to = filePatch.to
	}
	return from, to
}

func (filePatch *workingFilePatch) Chunks() []fdiff.Chunk { return filePatch.chunks }

type workingChunk struct {
	content   string
	operation fdiff.Operation
}

func (chunk workingChunk) Content() string       { return chunk.content }
func (chunk workingChunk) Type() fdiff.Operation { return chunk.operation }

func chunkOperation(operation diffmatchpatch.Operation) fdiff.Operation {
	switch operation {
	case diffmatchpatch.DiffInsert:
		return fdiff.Add
	case diffmatchpatch.DiffDelete:
		return fdiff.Delete
	default:
		return fdiff.Equal
	}
}

type workingPatch struct {
	files []fdiff.FilePatch
}

func (patch workingPatch) FilePatches() []fdiff.FilePatch { return patch.files }
func (patch workingPatch) Message() string                { return "" }
