//go:build mips64 || mips64le

package mmapfile

const MaxSize = 0x8000000000 // 512GB
