//go:build amd64 || arm64 || loong64 || ppc64 || ppc64le || riscv64 || s390x

package mmapfile

// MaxSize is the largest file that can be mapped.
const MaxSize = 0xFFFFFFFFFFFF // 256TB
