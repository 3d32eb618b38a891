//go:build 386 || arm || ppc || mips || mipsle

package mmapfile

const MaxSize = 0x7FFFFFFF // 2GB
