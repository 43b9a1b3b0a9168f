/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package oob

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlBlockPattern = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	htmlTagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
)

// ExtractCode finds the most likely one-time code in a delivered message. Digit runs of 4 to 8
// characters are candidates; 6 digits score highest, then 4, 5, 8 and 7. Ties go to the earliest
// run. HTML markup is removed first so that colours and dimensions are not mistaken for codes.
func ExtractCode(content string) (string, bool) {
	text := html.UnescapeString(htmlTagPattern.ReplaceAllString(
		htmlBlockPattern.ReplaceAllString(content, " "), " "))

	var current strings.Builder
	best, bestScore := "", 0
	consider := func() {
		if score := codeScore(current.Len()); score > bestScore {
			best, bestScore = current.String(), score
		}
		current.Reset()
	}
	for _, char := range text {
		if char >= '0' && char <= '9' {
			current.WriteRune(char)
			continue
		}
		consider()
	}
	consider()

	return best, best != ""
}

// codeScore ranks a digit run by its length.
func codeScore(length int) int {
	switch length {
	case 6:
		return 100
	case 4:
		return 80
	case 5:
		return 70
	case 8:
		return 60
	case 7:
		return 50
	}
	return 0
}
