// Package storage 提供本地目录文件存储：任务图片与品牌素材
package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"redink-api/internal/domain/entity"
)

var (
	// ErrInvalidPath 路径包含非法片段
	ErrInvalidPath = errors.New("storage: invalid path")
	// ErrNotExist 文件或目录不存在
	ErrNotExist = errors.New("storage: not exist")
)

// LocalStore 以 baseDir 为根的文件存储
// dir 参数可以是 "task_x" 或 "brand_x/logos"，每一段都会校验
type LocalStore struct {
	baseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewLocalStore 创建存储并确保根目录存在
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// BaseDir 根目录
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func validSegment(seg string) bool {
	if seg == "" || seg == "." || seg == ".." {
		return false
	}
	return !strings.ContainsAny(seg, `/\`) && !strings.ContainsRune(seg, 0)
}

// dirPath 校验并返回目录绝对路径
func (s *LocalStore) dirPath(dir string) (string, error) {
	parts := strings.Split(dir, "/")
	for _, p := range parts {
		if !validSegment(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, dir)
		}
	}
	return filepath.Join(append([]string{s.baseDir}, parts...)...), nil
}

// Path 校验并返回文件绝对路径
func (s *LocalStore) Path(dir, name string) (string, error) {
	d, err := s.dirPath(dir)
	if err != nil {
		return "", err
	}
	if !validSegment(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(d, name), nil
}

// DirExists 目录是否存在
func (s *LocalStore) DirExists(dir string) bool {
	d, err := s.dirPath(dir)
	if err != nil {
		return false
	}
	info, err := os.Stat(d)
	return err == nil && info.IsDir()
}

// EnsureDir 确保目录存在
func (s *LocalStore) EnsureDir(dir string) error {
	d, err := s.dirPath(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(d, 0o755)
}

// Write 原子写入：先写临时文件再 rename
func (s *LocalStore) Write(dir, name string, data []byte) error {
	fullPath, err := s.Path(dir, name)
	if err != nil {
		return err
	}

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Read 读取文件
func (s *LocalStore) Read(dir, name string) ([]byte, error) {
	fullPath, err := s.Path(dir, name)
	if err != nil {
		return nil, err
	}

	lock := s.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotExist, dir, name)
		}
		return nil, err
	}
	return data, nil
}

// Exists 文件是否存在
func (s *LocalStore) Exists(dir, name string) bool {
	fullPath, err := s.Path(dir, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Remove 删除文件，不存在时不报错
func (s *LocalStore) Remove(dir, name string) error {
	fullPath, err := s.Path(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveDir 递归删除目录
func (s *LocalStore) RemoveDir(dir string) error {
	d, err := s.dirPath(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(d)
}

// List 列出目录下的文件名，升序
func (s *LocalStore) List(dir string) ([]string, error) {
	d, err := s.dirPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, dir)
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListDirs 列出根目录下的子目录名，升序
func (s *LocalStore) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// PageImages 任务目录下每页的最新图片，按页码分组
// 缩略图被排除，同页多个版本取版本号最大的
func (s *LocalStore) PageImages(taskID string) (map[int]entity.ImageFile, error) {
	names, err := s.List(taskID)
	if err != nil {
		return nil, err
	}
	latest := make(map[int]entity.ImageFile)
	for _, name := range names {
		f, ok := entity.ParseImageFile(name)
		if !ok {
			continue
		}
		if cur, exists := latest[f.Index]; !exists || f.Version > cur.Version {
			latest[f.Index] = f
		}
	}
	return latest, nil
}

// NextVersion 页面下一个版本号，初始文件视为版本 1
func (s *LocalStore) NextVersion(taskID string, index int) (int, error) {
	names, err := s.List(taskID)
	if err != nil && !errors.Is(err, ErrNotExist) {
		return 0, err
	}
	next := 2
	for _, name := range names {
		f, ok := entity.ParseImageFile(name)
		if !ok || f.Index != index {
			continue
		}
		if f.Version >= next {
			next = f.Version + 1
		}
	}
	return next, nil
}

// WithNextVersion 在目录锁内分配页面的下一个版本文件名并交给 write 写入
// 同一目录的版本分配串行进行，并发调用不会拿到相同的版本号
func (s *LocalStore) WithNextVersion(dir string, index int, write func(name string) error) (string, error) {
	d, err := s.dirPath(dir)
	if err != nil {
		return "", err
	}
	lock := s.getFileLock(d)
	lock.Lock()
	defer lock.Unlock()

	v, err := s.NextVersion(dir, index)
	if err != nil {
		return "", err
	}
	name := entity.VersionFilename(index, v)
	if err := write(name); err != nil {
		return "", err
	}
	return name, nil
}

// WriteZip 将目录下的页面图片打包写入 w，缩略图除外
func (s *LocalStore) WriteZip(w io.Writer, dir string) (int, error) {
	names, err := s.List(dir)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	count := 0
	for _, name := range names {
		if _, ok := entity.ParseImageFile(name); !ok {
			continue
		}
		data, err := s.Read(dir, name)
		if err != nil {
			_ = zw.Close()
			return count, err
		}
		fw, err := zw.Create(name)
		if err != nil {
			_ = zw.Close()
			return count, err
		}
		if _, err := fw.Write(data); err != nil {
			_ = zw.Close()
			return count, err
		}
		count++
	}
	return count, zw.Close()
}
