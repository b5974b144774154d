/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package console reads operator commands from a line oriented input.
// console 包从按行输入中读取操作员命令。
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultPrompt is printed before each command on an interactive terminal
// DefaultPrompt 在交互式终端中每条命令前打印
const DefaultPrompt = "> "

// maxLineSize bounds a single command line
// maxLineSize 限制单条命令行的长度
const maxLineSize = 1024 * 1024

// Reader turns input lines into argument vectors
// Reader 将输入行转换为参数向量
type Reader struct {
	in     io.Reader
	out    io.Writer
	prompt string

	once  sync.Once
	lines chan []string
	err   error
}

// NewReader creates a new Reader instance without prompt
// NewReader 创建一个不带提示符的 Reader 实例
func NewReader(in io.Reader, out io.Writer) *Reader {
	return &Reader{
		in:  in,
		out: out,
	}
}

// NewStdinReader reads from stdin and prompts only when stdin is a terminal
// NewStdinReader 从标准输入读取，仅当标准输入为终端时显示提示符
func NewStdinReader() *Reader {
	r := NewReader(os.Stdin, os.Stdout)
	if IsTerminal(os.Stdin) {
		r.SetPrompt(DefaultPrompt)
	}
	return r
}

// IsTerminal reports whether f is attached to a terminal
// IsTerminal 报告 f 是否连接到终端
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetPrompt sets the prompt text; empty disables it
// SetPrompt 设置提示符，空字符串表示禁用
func (r *Reader) SetPrompt(prompt string) {
	r.prompt = prompt
}

// Prompt prints the prompt if one is set
// Prompt 如果设置了提示符则打印
func (r *Reader) Prompt() {
	if r.prompt != "" && r.out != nil {
		fmt.Fprint(r.out, r.prompt)
	}
}

// Lines starts reading and returns a channel of argument vectors, closed at
// end of input. Blank lines produce empty vectors. Repeated calls return the
// same channel.
// Lines 开始读取并返回参数向量通道，输入结束时关闭。空行产生空向量，重复调用返回同一通道。
func (r *Reader) Lines(ctx context.Context) <-chan []string {
	r.once.Do(func() {
		r.lines = make(chan []string)
		go r.scan(ctx)
	})
	return r.lines
}

// Err returns the read error that ended input, if any.
// Only valid after the Lines channel is closed.
// Err 返回导致输入结束的读取错误，仅在 Lines 通道关闭后有效。
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) scan(ctx context.Context) {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		select {
		case r.lines <- Tokenize(scanner.Text()):
		case <-ctx.Done():
			return
		}
	}
	r.err = scanner.Err()
}

// Tokenize splits a line into whitespace separated arguments
// Tokenize 将一行按空白字符拆分为参数
func Tokenize(line string) []string {
	return strings.Fields(line)
}
