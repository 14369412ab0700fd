// Package content 加载作品集站点的静态内容（个人简介、项目、文章、技能）。
package content

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultContent []byte

// Site 是站点内容的根节点。
type Site struct {
	Name     string    `yaml:"name" json:"name"`
	Author   string    `yaml:"author" json:"author"`
	Tagline  string    `yaml:"tagline" json:"tagline"`
	About    string    `yaml:"about" json:"about"`
	Projects []Project `yaml:"projects" json:"projects"`
	Posts    []Post    `yaml:"posts" json:"posts"`
	Skills   Skills    `yaml:"skills" json:"skills"`
}

// Project 是一个展示项目。
type Project struct {
	ID          int      `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Tech        []string `yaml:"tech" json:"tech"`
	GitHub      string   `yaml:"github" json:"github"`
	Live        string   `yaml:"live" json:"live"`
	Image       string   `yaml:"image" json:"image"`
	Featured    bool     `yaml:"featured" json:"featured"`
}

// Post 是一篇博客文章，Content 为 Markdown。
type Post struct {
	ID      int      `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Excerpt string   `yaml:"excerpt" json:"excerpt"`
	Content string   `yaml:"content" json:"content"`
	Author  string   `yaml:"author" json:"author"`
	Date    string   `yaml:"date" json:"date"`
	Tags    []string `yaml:"tags" json:"tags"`
	Image   string   `yaml:"image" json:"image"`
}

// Skill 是带熟练度的技术技能。
type Skill struct {
	Name  string `yaml:"name" json:"name"`
	Level int    `yaml:"level" json:"level"`
}

// Skills 分为技术技能与软技能。
type Skills struct {
	Technical []Skill  `yaml:"technical" json:"technical"`
	Soft      []string `yaml:"soft" json:"soft"`
}

// Load 读取 path 指定的 YAML；path 为空时使用内置内容。
func Load(path string) (*Site, error) {
	raw := defaultContent
	if p := strings.TrimSpace(path); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read content file: %w", err)
		}
		raw = data
	}
	return Parse(raw)
}

// Parse 解析 YAML 内容并补齐缺省值。
func Parse(raw []byte) (*Site, error) {
	var site Site
	if err := yaml.Unmarshal(raw, &site); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if strings.TrimSpace(site.Name) == "" {
		site.Name = "Portfolio"
	}
	for i := range site.Posts {
		if site.Posts[i].Author == "" {
			site.Posts[i].Author = site.Author
		}
	}
	return &site, nil
}

// FindPost 根据 ID 查找文章。
func (s *Site) FindPost(id int) (Post, bool) {
	for _, post := range s.Posts {
		if post.ID == id {
			return post, true
		}
	}
	return Post{}, false
}

// FeaturedProjects 返回标记为精选的项目。
func (s *Site) FeaturedProjects() []Project {
	featured := make([]Project, 0, len(s.Projects))
	for _, project := range s.Projects {
		if project.Featured {
			featured = append(featured, project)
		}
	}
	return featured
}
